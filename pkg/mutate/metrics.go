package mutate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the coordinator's Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "orrery").
	Namespace string

	// Subsystem is the metrics subsystem (default: "mutate").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// coordinatorMetrics is nil-safe: a nil receiver records nothing.
type coordinatorMetrics struct {
	mutations *prometheus.CounterVec
	rollbacks prometheus.Counter
}

func newCoordinatorMetrics(cfg MetricsConfig) *coordinatorMetrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "orrery"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "mutate"
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &coordinatorMetrics{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "mutations_total",
			Help:        "Settled mutations by kind and outcome.",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind", "outcome"}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "rollbacks_total",
			Help:        "Mutations rolled back after a remote failure.",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

func (m *coordinatorMetrics) observeMutation(kind Kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *coordinatorMetrics) observeRollback() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}
