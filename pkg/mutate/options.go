package mutate

import "go.opentelemetry.io/otel"

// Option configures a Coordinator at construction time.
type Option[T, C, P any] func(*Coordinator[T, C, P])

// WithoutSettleInvalidation disables the settle-time Invalidate of touched
// entries. Useful when the store has no fetcher or when a live feed already
// reconciles the cache.
func WithoutSettleInvalidation[T, C, P any]() Option[T, C, P] {
	return func(c *Coordinator[T, C, P]) {
		c.settleInvalidate = false
	}
}

// WithTracing enables an OpenTelemetry span per mutation, named
// "mutate.<kind>" under the given tracer name.
func WithTracing[T, C, P any](tracerName string) Option[T, C, P] {
	return func(c *Coordinator[T, C, P]) {
		if tracerName == "" {
			tracerName = "orrery"
		}
		c.tracer = otel.Tracer(tracerName)
	}
}

// WithMetrics instruments the coordinator with Prometheus metrics.
func WithMetrics[T, C, P any](cfg MetricsConfig) Option[T, C, P] {
	return func(c *Coordinator[T, C, P]) {
		c.metrics = newCoordinatorMetrics(cfg)
	}
}

// OnStart registers a callback fired when a mutation begins, before the
// optimistic apply.
func OnStart[T, C, P any](fn func(Kind)) Option[T, C, P] {
	return func(c *Coordinator[T, C, P]) {
		c.onStart = fn
	}
}

// OnSuccess registers a callback fired after a mutation commits. For
// deletes the entity argument is the zero value.
func OnSuccess[T, C, P any](fn func(Kind, T)) Option[T, C, P] {
	return func(c *Coordinator[T, C, P]) {
		c.onSuccess = fn
	}
}

// OnError registers a callback fired after a mutation rolls back.
func OnError[T, C, P any](fn func(Kind, error)) Option[T, C, P] {
	return func(c *Coordinator[T, C, P]) {
		c.onError = fn
	}
}
