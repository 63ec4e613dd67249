// snapsolved is the homework-solving service daemon: it accepts problem
// photos or typed questions over HTTP, solves them through the multi-stage
// pipeline, and answers follow-up questions about past solutions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapsolve/snapsolve/internal/config"
	"github.com/snapsolve/snapsolve/internal/evaluate"
	"github.com/snapsolve/snapsolve/internal/gateway"
	"github.com/snapsolve/snapsolve/internal/observability"
	"github.com/snapsolve/snapsolve/internal/pipeline"
	"github.com/snapsolve/snapsolve/internal/provider"
	"github.com/snapsolve/snapsolve/internal/quota"
	"github.com/snapsolve/snapsolve/internal/routing"
	"github.com/snapsolve/snapsolve/internal/service"
	"github.com/snapsolve/snapsolve/internal/storage"
	"github.com/snapsolve/snapsolve/internal/vision"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	selector := routing.NewSelector(registry)

	var extractor vision.Extractor
	if cfg.Providers.Google.Enabled() {
		extractor, err = vision.NewGeminiExtractor(ctx, cfg.Providers.Google.APIKey, cfg.Vision.Model)
		if err != nil {
			return fmt.Errorf("vision extractor: %w", err)
		}
	} else {
		logger.Warn("no google api key, image extraction disabled")
	}

	store, quotaStore, settings, closeDB, err := buildStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	if cfg.Quota.GuestDailyLimit > 0 {
		if err := settings.SetInt(ctx, quota.SettingGuestDailyLimit, cfg.Quota.GuestDailyLimit); err != nil {
			return fmt.Errorf("seed guest limit: %w", err)
		}
	}

	solver := pipeline.NewSolver(extractor, selector, nil, logger)
	solver.SetVerifyTimeout(cfg.Pipeline.VerifyTimeout)

	metrics := observability.NewMetrics()
	evaluator := evaluate.NewEvaluator(selector, store, logger)
	evaluator.OnDone(func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.EvaluationCounter.WithLabelValues(status).Inc()
	})

	admission := quota.NewController(quotaStore, settings, logger)
	svc := service.NewScanService(solver, pipeline.NewFollowUp(selector, logger), admission, store, logger, service.Options{
		Evaluator: evaluator,
		Metrics:   metrics,
	})

	srv := gateway.NewServer(cfg.Server, cfg.Quota, svc, extractor, metrics, logger)
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildProviders registers every provider that has credentials. Model
// overrides from config replace the built-in defaults per tier.
func buildProviders(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if c := cfg.Providers.Anthropic; c.Enabled() {
		p, err := provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:     c.APIKey,
			MaxRetries: c.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(p, tierOverrides(c))
	}

	if c := cfg.Providers.OpenAI; c.Enabled() {
		p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:     c.APIKey,
			MaxRetries: c.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(p, tierOverrides(c))
	}

	if c := cfg.Providers.Google; c.Enabled() {
		p, err := provider.NewGoogleProvider(ctx, provider.GoogleConfig{
			APIKey:     c.APIKey,
			MaxRetries: c.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		registry.Register(p, tierOverrides(c))
	}

	if len(registry.Order()) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}
	return registry, nil
}

func tierOverrides(c config.ProviderConfig) map[provider.Tier]string {
	overrides := map[provider.Tier]string{}
	if c.StrongModel != "" {
		overrides[provider.TierStrong] = c.StrongModel
	}
	if c.FastModel != "" {
		overrides[provider.TierFast] = c.FastModel
	}
	return overrides
}

// buildStorage opens the SQLite-backed stores, or in-memory ones when no
// database path is configured.
func buildStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, quota.Store, quota.Settings, func(), error) {
	if cfg.Database.Path == "" {
		logger.Warn("no database path configured, using in-memory storage")
		return storage.NewMemoryStore(), quota.NewMemoryStore(), quota.NewMemorySettings(nil), func() {}, nil
	}

	store, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	quotaStore, err := quota.NewSQLiteStore(store.DB())
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}
	settings, err := quota.NewSQLiteSettings(store.DB())
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}

	closeDB := func() {
		if err := store.Close(); err != nil {
			logger.Warn("database close error", "error", err)
		}
	}
	return store, quotaStore, settings, closeDB, nil
}
