package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sidebet/relayer/internal/domain"
	"github.com/sidebet/relayer/internal/metrics"
	"github.com/sidebet/relayer/internal/server/handler"
	"github.com/sidebet/relayer/internal/server/middleware"
	"github.com/sidebet/relayer/internal/server/ws"
)

// RateLimitTier is one of the two independent request budgets from spec §4.6.
type RateLimitTier struct {
	Limit  int
	Window time.Duration
}

// Config holds the HTTP server configuration.
type Config struct {
	Port         int
	CORSOrigins  []string
	DefaultTier  RateLimitTier
	WriteTier    RateLimitTier
	EnableDelete bool // dev-only DELETE /api/attestations/{market}
}

// Handlers aggregates all HTTP handlers the server registers routes for.
// Hub is optional; when nil, GET /ws is not registered.
type Handlers struct {
	Health       *handler.HealthHandler
	Markets      *handler.MarketHandler
	Attestations *handler.AttestationHandler
	Hub          *ws.Hub
}

// Server is the HTTP API server for the relayer.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (logging, CORS, rate limiting) applied.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /health/detailed", handlers.Health.Detailed)
	mux.HandleFunc("GET /health/metrics", handlers.Health.Metrics)
	mux.HandleFunc("GET /health/queue", handlers.Health.Queue)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{address}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{address}/sync", handlers.Markets.SyncMarket)
	mux.HandleFunc("GET /api/markets/{address}/participants", handlers.Markets.Participants)
	mux.HandleFunc("GET /api/markets/{address}/proposal", handlers.Markets.Proposal)
	mux.HandleFunc("GET /api/markets/{address}/status", handlers.Markets.Status)
	mux.HandleFunc("POST /api/markets/predict-address", handlers.Markets.PredictAddress)

	mux.HandleFunc("POST /api/attestations", handlers.Attestations.Submit)
	mux.HandleFunc("GET /api/attestations", handlers.Attestations.List)
	mux.HandleFunc("GET /api/attestations/{market}", handlers.Attestations.GetByMarket)
	mux.HandleFunc("GET /api/attestations/{market}/count", handlers.Attestations.Count)
	if cfg.EnableDelete {
		mux.HandleFunc("DELETE /api/attestations/{market}", handlers.Attestations.Delete)
	}

	mux.Handle("GET /metrics", metrics.Handler())
	if handlers.Hub != nil {
		mux.HandleFunc("GET /ws", handlers.Hub.HandleWS)
	}

	// Write-path endpoints (POST/DELETE) get the tighter write-tier budget;
	// everything else shares the default tier. The two tiers are keyed
	// independently in middleware/ratelimit.go, so a request must pass
	// through exactly one of them, never both — double-gating a write
	// through the default tier too would let an exhausted read budget block
	// writes whose own budget is untouched.
	writeLimited := middleware.RateLimit(limiter, "write", cfg.WriteTier.Limit, cfg.WriteTier.Window)(mux)
	defaultLimited := middleware.RateLimit(limiter, "default", cfg.DefaultTier.Limit, cfg.DefaultTier.Window)(mux)

	// /health* is exempt from rate limiting per spec so orchestrators and
	// load balancers can probe liveness without competing for budget.
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/health"):
			mux.ServeHTTP(w, r)
		case r.Method == http.MethodPost || r.Method == http.MethodDelete:
			writeLimited.ServeHTTP(w, r)
		default:
			defaultLimited.ServeHTTP(w, r)
		}
	})
	h = middleware.Logging(logger)(h)
	h = metrics.Middleware(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
