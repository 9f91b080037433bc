package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
	"github.com/ballotbox/ballotbox/internal/server/handlers"
)

// routeTable records every registered method per path so 405 responses can
// name the accepted method and stats can label requests before routing.
type routeTable struct {
	methods map[string][]string
}

func newRouteTable() *routeTable {
	return &routeTable{methods: make(map[string][]string)}
}

func (t *routeTable) add(method, path string) {
	t.methods[path] = append(t.methods[path], method)
	sort.Strings(t.methods[path])
}

// allowed returns the comma-separated methods registered for path.
func (t *routeTable) allowed(path string) string {
	return strings.Join(t.methods[path], ", ")
}

func (t *routeTable) label(r *http.Request) string {
	if _, ok := t.methods[r.URL.Path]; ok {
		return r.URL.Path
	}
	return "/unknown"
}

func (s *Server) handle(method, path string, h http.HandlerFunc) {
	s.routes.add(method, path)
	s.router.Method(method, path, h)
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	prefix := s.cfg.APIPrefix()
	s.handle(http.MethodGet, prefix+"/candidates", s.api.ListCandidates)
	s.handle(http.MethodPost, prefix+"/vote", s.api.CastVote)

	if s.cfg.Health.Enabled {
		s.handle(http.MethodGet, "/health", s.deps.Health.HealthHandler)
		s.handle(http.MethodGet, "/health/live", s.deps.Health.LivenessHandler)
		s.handle(http.MethodGet, "/health/ready", s.deps.Health.ReadinessHandler)
		s.handle(http.MethodGet, "/health/startup", s.deps.Health.StartupHandler)
	}

	s.handle(http.MethodGet, "/version", handlers.VersionHandler(s.cfg.Server.ProtocolVersion, prefix))

	if s.cfg.Metrics.Enabled {
		s.handle(http.MethodGet, "/metrics", MetricsHandler)
	}

	if s.cfg.Stats.Enabled {
		var source stats.Snapshotter = stats.Nop{}
		if snap, ok := s.deps.Stats.(stats.Snapshotter); ok {
			source = snap
		}
		s.handle(http.MethodGet, "/stats/ratelimit", handlers.StatsHandler(source))
	}

	if s.cfg.Debug.Enabled {
		s.router.Mount("/debug", middleware.Profiler())
	}
}
