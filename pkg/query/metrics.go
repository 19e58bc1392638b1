package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the store's Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "orrery").
	Namespace string

	// Subsystem is the metrics subsystem (default: "query").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// storeMetrics holds the instruments for one store. A nil *storeMetrics is
// valid and records nothing, so the store never branches on whether metrics
// are configured.
type storeMetrics struct {
	gets          *prometheus.CounterVec
	sets          prometheus.Counter
	restores      prometheus.Counter
	invalidations prometheus.Counter
	refetches     *prometheus.CounterVec
}

func newStoreMetrics(cfg MetricsConfig) *storeMetrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "orrery"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "query"
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &storeMetrics{
		gets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "gets_total",
			Help:        "Cache reads, labeled by whether the key held a value.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"result"}),
		sets: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "sets_total",
			Help:        "Cache writes (Set and Update).",
			ConstLabels: cfg.ConstLabels,
		}),
		restores: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "restores_total",
			Help:        "Snapshot restorations (mutation rollbacks).",
			ConstLabels: cfg.ConstLabels,
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "invalidations_total",
			Help:        "Invalidate calls.",
			ConstLabels: cfg.ConstLabels,
		}),
		refetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "refetches_total",
			Help:        "Background refetch outcomes.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),
	}
}

func (m *storeMetrics) observeGet(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.gets.WithLabelValues("hit").Inc()
	} else {
		m.gets.WithLabelValues("miss").Inc()
	}
}

func (m *storeMetrics) observeSet() {
	if m == nil {
		return
	}
	m.sets.Inc()
}

func (m *storeMetrics) observeRestore() {
	if m == nil {
		return
	}
	m.restores.Inc()
}

func (m *storeMetrics) observeInvalidate() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

func (m *storeMetrics) observeRefetch(outcome string) {
	if m == nil {
		return
	}
	m.refetches.WithLabelValues(outcome).Inc()
}
