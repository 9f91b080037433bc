package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ballotbox/ballotbox/internal/config"
	"github.com/ballotbox/ballotbox/internal/core/body"
	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	apperrors "github.com/ballotbox/ballotbox/internal/errors"
	"github.com/ballotbox/ballotbox/internal/observability"
	"github.com/ballotbox/ballotbox/internal/server/handlers"
	servermw "github.com/ballotbox/ballotbox/internal/server/middleware"
)

// Deps are the collaborators the server routes requests to. Nil fields
// fall back to no-op implementations.
type Deps struct {
	Limiter    ratelimit.Limiter
	Stats      stats.Recorder
	Candidates candidates.Store
	Health     *handlers.HealthManager
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    *config.Config
	deps   Deps
	api    *handlers.API
	routes *routeTable
}

// New builds the router for cfg. Only protocol version 1 is served; any
// other version is a CONFIG_INVALID error.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigInvalidError("server configuration is required")
	}
	if cfg.Server.ProtocolVersion != config.SupportedProtocolVersion {
		return nil, apperrors.NewConfigInvalidError(fmt.Sprintf(
			"protocol version %d is not supported (only %d)", cfg.Server.ProtocolVersion, config.SupportedProtocolVersion))
	}

	encoding, err := body.ParseEncoding(cfg.Body.Encoding)
	if err != nil {
		return nil, apperrors.NewConfigInvalidError(err.Error())
	}

	if deps.Candidates == nil {
		deps.Candidates = candidates.StubStore{}
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		deps:   deps,
		api: &handlers.API{
			Candidates:            deps.Candidates,
			MaxBodyBytes:          cfg.Body.MaxBytes,
			Encoding:              encoding,
			RequireKnownCandidate: cfg.Vote.RequireKnownCandidate,
		},
		routes: newRouteTable(),
	}

	// RequestID → Metrics → Recovery → RateLimit
	s.router.Use(servermw.RequestID)
	s.router.Use(servermw.RequestMetrics)
	s.router.Use(servermw.Recovery)
	s.router.Use(servermw.RateLimit(s.rateLimitOptions()))

	s.router.NotFound(s.notFound)
	s.router.MethodNotAllowed(s.methodNotAllowed)

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s, nil
}

func (s *Server) rateLimitOptions() servermw.RateLimitOptions {
	opts := servermw.RateLimitOptions{
		Stats:        s.deps.Stats,
		StatsBackend: s.cfg.Stats.Backend,
		Address: ratelimit.AddressOptions{
			KeyHeader:         s.cfg.RateLimit.KeyHeader,
			TrustForwardedFor: s.cfg.RateLimit.TrustForwardedFor,
		},
		Exempt:     s.cfg.RateLimit.Exempt,
		Reject:     rejectRateLimited,
		RouteLabel: s.routes.label,
	}
	if s.cfg.RateLimit.Enabled {
		opts.Limiter = s.deps.Limiter
	}
	return opts
}

func rejectRateLimited(w http.ResponseWriter, r *http.Request, address string, d ratelimit.Decision) {
	retry := int((d.RetryAfter + time.Second - 1) / time.Second)
	HandleError(w, r, apperrors.NewRateLimitError(r.Context(), address, retry))
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	HandleError(w, r, apperrors.NewNotFoundError(r.Context(), r.URL.Path))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	allowed := s.routes.allowed(r.URL.Path)
	if allowed == "" {
		s.notFound(w, r)
		return
	}
	w.Header().Set("Allow", allowed)
	HandleError(w, r, apperrors.NewMethodNotAllowedError(r.Context(), r.Method, allowed))
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	addr := s.cfg.Address()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.String("api_prefix", s.cfg.APIPrefix()),
			zap.Bool("rate_limit", s.cfg.RateLimit.Enabled && s.deps.Limiter != nil))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.cfg.Server.Port
}
