package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/policyprobe/policyprobe/pkg/catalog"
	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/session"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// Config holds the HTTP server settings.
type Config struct {
	// ListenAddr is the address the server binds to.
	ListenAddr string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the HTTP polling surface. It exposes sessions, run start and
// status, progress snapshots, per-step captures with comparison, catalog
// browsing, health, and Prometheus metrics.
type Server struct {
	cfg          Config
	orchestrator *engine.Orchestrator
	sessions     *session.Manager
	catalog      *catalog.Catalog
	logger       *telemetry.Logger
	metrics      *telemetry.Metrics
}

// New creates a server over the given engine components.
func New(cfg Config, orchestrator *engine.Orchestrator, sessions *session.Manager, cat *catalog.Catalog, tel *telemetry.Telemetry) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultConfig().ListenAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	return &Server{
		cfg:          cfg,
		orchestrator: orchestrator,
		sessions:     sessions,
		catalog:      cat,
		logger:       tel.Logger.NewComponentLogger("http"),
		metrics:      tel.Metrics,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{session_id}", s.handleGetSession)
	mux.HandleFunc("PUT /api/sessions/{session_id}/status", s.handleUpdateSessionStatus)

	mux.HandleFunc("POST /api/runs", s.handleStartRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{run_id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{run_id}/progress", s.handleRunProgress)
	mux.HandleFunc("GET /api/runs/{run_id}/executions/{execution_id}", s.handleGetExecution)
	mux.HandleFunc("GET /api/runs/{run_id}/executions/{execution_id}/comparison", s.handleGetComparison)

	mux.HandleFunc("GET /api/catalog", s.handleGetCatalog)
	mux.HandleFunc("GET /api/catalog/categories", s.handleListCategories)
	mux.HandleFunc("GET /api/catalog/categories/{category}/products", s.handleListProducts)
	mux.HandleFunc("GET /api/catalog/categories/{category}/products/{product_id}/plans", s.handleListPlans)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.logRequests(mux)
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.ListenAddr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		err := <-errCh
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("request handled")
	})
}
