package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"mercator-hq/ascent/pkg/config"
	"mercator-hq/ascent/pkg/telemetry/health"
	"mercator-hq/ascent/pkg/tier"
)

// Deps are the components the API serves. Manual, Engine and History are
// required; the rest may be nil and their routes are then not registered.
type Deps struct {
	Manual   Manual
	Engine   Engine
	History  tier.HistoryStore
	Authz    ReclassifyAuthorizer
	Listener LedgerListener
	Health   *health.Checker

	Metrics     http.Handler
	MetricsPath string

	Version health.VersionInfo
}

// Server is the admin HTTP server.
type Server struct {
	cfg    *config.ServerConfig
	deps   Deps
	logger *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	running    bool
}

// New creates a server. It does not listen until Start.
func New(cfg *config.ServerConfig, deps Deps, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.Manual == nil || deps.Engine == nil || deps.History == nil {
		return nil, errors.New("server: manual flow, engine and history store are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, deps: deps, logger: logger.With("component", "server")}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/manual/check", s.handleManualCheck)
	mux.HandleFunc("POST /v1/manual/confirm", s.handleManualConfirm)
	mux.HandleFunc("GET /v1/distributors/{id}/eligibility", s.handleEligibility)
	mux.HandleFunc("GET /v1/distributors/{id}/history", s.handleDistributorHistory)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("POST /v1/history/{id}/reclassify", s.handleReclassify)

	if s.deps.Listener != nil {
		mux.HandleFunc("POST /v1/events/withdrawal", s.handleLedgerEvent(LedgerListener.OnWithdrawal))
		mux.HandleFunc("POST /v1/events/commission", s.handleLedgerEvent(LedgerListener.OnCommission))
	}
	if s.deps.Health != nil {
		mux.Handle("/healthz", s.deps.Health.LivenessHandler())
		mux.Handle("/readyz", s.deps.Health.ReadinessHandler())
	}
	v := s.deps.Version
	mux.Handle("/version", health.VersionHandler(v.Version, v.Commit, v.BuildTime))
	if s.deps.Metrics != nil {
		path := s.deps.MetricsPath
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle("GET "+path, s.deps.Metrics)
	}

	var h http.Handler = mux
	h = accessLog(s.logger)(h)
	h = requestID(h)
	h = recovery(s.logger)(h)
	return h
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server is already running")
	}
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err, ok := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting connections and waits for active requests, up
// to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running || srv == nil {
		return nil
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.ShutdownTimeout.String())
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("admin server stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
