// Package gateway exposes the HTTP API: solve, follow-up, history, quota,
// and the operational endpoints.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapsolve/snapsolve/internal/config"
	"github.com/snapsolve/snapsolve/internal/observability"
	"github.com/snapsolve/snapsolve/internal/service"
	"github.com/snapsolve/snapsolve/internal/vision"
)

// Server is the HTTP front of the service.
type Server struct {
	cfg       config.ServerConfig
	quotaCfg  config.QuotaConfig
	service   *service.ScanService
	extractor vision.Extractor
	metrics   *observability.Metrics
	logger    *slog.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires the HTTP server. The extractor serves the OCR-only
// endpoint; metrics may be nil.
func NewServer(
	cfg config.ServerConfig,
	quotaCfg config.QuotaConfig,
	svc *service.ScanService,
	extractor vision.Extractor,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		quotaCfg:  quotaCfg,
		service:   svc,
		extractor: extractor,
		metrics:   metrics,
		logger:    logger.With("component", "gateway"),
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/scan", s.instrument("/v1/scan", s.handleSolve))
	mux.HandleFunc("POST /v1/extract-text", s.instrument("/v1/extract-text", s.handleExtractText))
	mux.HandleFunc("GET /v1/scans/{id}", s.instrument("/v1/scans/{id}", s.handleGetScan))
	mux.HandleFunc("GET /v1/scans/{id}/conversation", s.instrument("/v1/scans/{id}/conversation", s.handleConversation))
	mux.HandleFunc("POST /v1/scans/{id}/followup", s.instrument("/v1/scans/{id}/followup", s.handleFollowUp))
	mux.HandleFunc("GET /v1/quota", s.instrument("/v1/quota", s.handleQuota))
	mux.HandleFunc("GET /v1/history", s.instrument("/v1/history", s.handleHistory))

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr reports the bound listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// instrument wraps a handler with request metrics keyed by route pattern.
func (s *Server) instrument(pattern string, next http.HandlerFunc) http.HandlerFunc {
	if s.metrics == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		code := strconv.Itoa(rec.status)
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern, code).
			Observe(time.Since(start).Seconds())
		s.metrics.HTTPRequestCounter.WithLabelValues(r.Method, pattern, code).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
