package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "orrery").
	Namespace string

	// Subsystem is the metrics subsystem (default: "http").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Metrics returns middleware recording request counts and latency.
func Metrics(cfg MetricsConfig) func(http.Handler) http.Handler {
	if cfg.Namespace == "" {
		cfg.Namespace = "orrery"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "http"
	}
	if cfg.Buckets == nil {
		cfg.Buckets = prometheus.DefBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	requests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "requests_total",
		Help:        "HTTP requests by method and status.",
		ConstLabels: cfg.ConstLabels,
	}, []string{"method", "status"})

	duration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Subsystem:   cfg.Subsystem,
		Name:        "request_duration_seconds",
		Help:        "HTTP request latency.",
		ConstLabels: cfg.ConstLabels,
		Buckets:     cfg.Buckets,
	}, []string{"method"})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
			duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}
