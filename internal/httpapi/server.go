// Package httpapi exposes the control-plane HTTP surface: the signed
// approval webhook, the dealer resolution endpoint, and the live update
// stream.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dealeriq/priorityd/internal/jobs"
	"github.com/dealeriq/priorityd/internal/places"
	"github.com/dealeriq/priorityd/internal/stream"
)

type ServerConfig struct {
	// WebhookSecret returns the current shared secret; it is a func so a
	// rotated secret file takes effect without a restart.
	WebhookSecret     func() string
	MaxBodyBytes      int64
	AppVersion        string
	HeartbeatInterval time.Duration
}

type Server struct {
	jobs     jobs.Store
	resolver *places.Resolver
	source   stream.Source
	cfg      ServerConfig
	logger   *zap.Logger
}

func NewServer(jobStore jobs.Store, resolver *places.Resolver, source stream.Source, cfg ServerConfig, logger *zap.Logger) *Server {
	if cfg.WebhookSecret == nil {
		cfg.WebhookSecret = func() string { return "" }
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "dev"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		jobs:     jobStore,
		resolver: resolver,
		source:   source,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/v1/healthz", s.handleHealthz)
	router.Post("/v1/priority/approve", s.handleApprove)
	router.Get("/v1/resolve", s.handleResolve)
	router.Get("/v1/stream", s.handleStream)
	router.Get("/v1/stream/ws", s.handleStreamWS)
	return router
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": s.cfg.AppVersion})
}
