// Package server implements the HTTP API for the pharmacy intake pipeline:
// the customer chat endpoint, operator token issuance, health, and the
// authenticated admin read surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yakkyoku-ai/yakkyoku/internal/auth"
	"github.com/yakkyoku-ai/yakkyoku/internal/pipeline"
	"github.com/yakkyoku-ai/yakkyoku/internal/ratelimit"
	"github.com/yakkyoku-ai/yakkyoku/internal/storage"
)

// ServerConfig holds the dependencies and settings for the HTTP server.
type ServerConfig struct {
	DB      *storage.DB
	JWTMgr  *auth.JWTManager
	Runner  *pipeline.Runner
	Limiter ratelimit.Limiter
	Logger  *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Version             string
	MaxRequestBodyBytes int64
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// New creates a Server with all routes and middleware configured.
func New(cfg ServerConfig) *Server {
	h := &Handlers{
		db:           cfg.DB,
		jwtMgr:       cfg.JWTMgr,
		runner:       cfg.Runner,
		logger:       cfg.Logger,
		version:      cfg.Version,
		maxBodyBytes: cfg.MaxRequestBodyBytes,
		startTime:    time.Now(),
	}

	mux := http.NewServeMux()

	// Unauthenticated endpoints carry a per-IP rate limit so one client
	// cannot monopolize the intake pipeline or brute-force operator keys.
	intakeRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	})

	// Customer intake (no auth, rate limited).
	mux.Handle("POST /v1/chat", intakeRL(http.HandlerFunc(h.HandleChat)))

	// Operator token issuance (no auth, rate limited).
	mux.Handle("POST /auth/token", intakeRL(http.HandlerFunc(h.HandleAuthToken)))

	// Admin read surface (JWT required, enforced by authMiddleware).
	mux.HandleFunc("GET /admin/medicines", h.HandleListMedicines)
	mux.HandleFunc("GET /admin/customers", h.HandleListCustomers)
	mux.HandleFunc("GET /admin/customers/{id}", h.HandleGetCustomer)
	mux.HandleFunc("GET /admin/customers/{id}/history", h.HandleCustomerHistory)
	mux.HandleFunc("GET /admin/orders", h.HandleListOrders)
	mux.HandleFunc("GET /admin/orders/{id}", h.HandleGetOrder)
	mux.HandleFunc("GET /admin/traces", h.HandleListTraces)
	mux.HandleFunc("GET /admin/traces/{id}", h.HandleGetTrace)
	mux.HandleFunc("GET /admin/requests/{id}/trace", h.HandleRequestTrace)

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
