// Package server implements the subjects backend: a chi-routed HTTP API
// over SQLite persistence, a websocket change feed, and an optional chart
// export path backed by the astrology API and an export store.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/orrery-dev/orrery/pkg/astro"
	"github.com/orrery-dev/orrery/pkg/export"
	"github.com/orrery-dev/orrery/pkg/middleware"
)

// Config configures a Server.
type Config struct {
	// Store is the subjects persistence layer. Required.
	Store *SubjectStore

	// Logger receives request and lifecycle logs. Default: slog.Default().
	Logger *slog.Logger

	// Astro computes charts for the export path. Optional; exports
	// return 503 when unset.
	Astro *astro.Client

	// Exports stores exported chart documents. Optional; exports return
	// 503 when unset.
	Exports export.Store

	// WriteRate caps mutating requests per second across all clients.
	// Zero disables limiting. Excess writes receive 429.
	WriteRate float64

	// WriteBurst is the write limiter's burst size (default 5 when
	// WriteRate is set).
	WriteBurst int

	// EnableMetrics mounts /metrics and instruments requests.
	EnableMetrics bool

	// MetricsRegistry overrides the Prometheus registry used when
	// EnableMetrics is set. Default: the global registry.
	MetricsRegistry *prometheus.Registry

	// EnableTracing adds an OpenTelemetry span per request.
	EnableTracing bool
}

// Server is the subjects backend.
type Server struct {
	store   *SubjectStore
	logger  *slog.Logger
	hub     *Hub
	astro   *astro.Client
	exports export.Store
	limiter *rate.Limiter
	cfg     Config
}

// New assembles a Server from cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.WriteRate > 0 {
		burst := cfg.WriteBurst
		if burst <= 0 {
			burst = 5
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.WriteRate), burst)
	}

	return &Server{
		store:   cfg.Store,
		logger:  logger,
		hub:     NewHub(logger),
		astro:   cfg.Astro,
		exports: cfg.Exports,
		limiter: limiter,
		cfg:     cfg,
	}
}

// Hub exposes the live-feed hub, mainly for tests and shutdown.
func (s *Server) Hub() *Hub { return s.hub }

// Router builds the HTTP handler with all middleware and routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.logger))
	if s.cfg.EnableTracing {
		r.Use(middleware.OTel(middleware.OTelConfig{}))
	}
	if s.cfg.EnableMetrics {
		metricsCfg := middleware.MetricsConfig{}
		handler := promhttp.Handler()
		if s.cfg.MetricsRegistry != nil {
			metricsCfg.Registry = s.cfg.MetricsRegistry
			handler = promhttp.HandlerFor(s.cfg.MetricsRegistry, promhttp.HandlerOpts{})
		}
		r.Use(middleware.Metrics(metricsCfg))
		r.Method(http.MethodGet, "/metrics", handler)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/live", s.hub.HandleWebSocket)

	r.Route("/api/subjects", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/export", s.handleExport)
	})

	return r
}

// Close releases the server's resources (feed clients; the store is owned
// by the caller).
func (s *Server) Close() {
	s.hub.Close()
}

// allowWrite applies the global write rate limit.
func (s *Server) allowWrite() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
