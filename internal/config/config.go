// Package config loads the service configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Vision    VisionConfig    `yaml:"vision"`
	Quota     QuotaConfig     `yaml:"quota"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file. Empty means in-memory stores,
	// suitable only for development.
	Path string `yaml:"path"`
}

// ProvidersConfig carries per-provider credentials and model overrides.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Google    ProviderConfig `yaml:"google"`
}

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`

	// StrongModel and FastModel override the built-in model defaults.
	StrongModel string `yaml:"strong_model"`
	FastModel   string `yaml:"fast_model"`

	MaxRetries int `yaml:"max_retries"`
}

// Enabled reports whether the provider has credentials configured.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != ""
}

type VisionConfig struct {
	// Model overrides the extraction model. Empty uses the default.
	Model string `yaml:"model"`
}

type QuotaConfig struct {
	// GuestDailyLimit seeds the runtime guest_daily_limit setting.
	// Zero keeps the built-in default.
	GuestDailyLimit int `yaml:"guest_daily_limit"`

	// UserDailyLimit is the default for users with no tier assignment.
	UserDailyLimit int `yaml:"user_daily_limit"`
}

type PipelineConfig struct {
	// VerifyTimeout bounds one quick verification call.
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads, env-expands, and parses the config file at path, then applies
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no file is given. Credentials
// come from the conventional environment variables.
func Default() *Config {
	cfg := &Config{
		Providers: ProvidersConfig{
			Anthropic: ProviderConfig{APIKey: os.Getenv("ANTHROPIC_API_KEY")},
			OpenAI:    ProviderConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
			Google:    ProviderConfig{APIKey: os.Getenv("GEMINI_API_KEY")},
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Solves can take most of a minute across retries.
		cfg.Server.WriteTimeout = 180 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks that the configuration can actually run a service.
func (c *Config) Validate() error {
	if !c.Providers.Anthropic.Enabled() && !c.Providers.OpenAI.Enabled() && !c.Providers.Google.Enabled() {
		return fmt.Errorf("at least one provider API key is required")
	}
	if c.Quota.GuestDailyLimit < 0 {
		return fmt.Errorf("guest_daily_limit must not be negative")
	}
	if c.Quota.UserDailyLimit < 0 {
		return fmt.Errorf("user_daily_limit must not be negative")
	}
	return nil
}
