package query

import (
	"time"

	"golang.org/x/time/rate"
)

// Option configures a Store at construction time.
type Option[T any] func(*Store[T])

// refetchLimiter gates invalidation-triggered refetches. Satisfied by
// *rate.Limiter.
type refetchLimiter interface {
	Allow() bool
}

// WithFetcher sets the fetcher used by Invalidate to reconcile entries with
// the server. Without a fetcher, Invalidate is a no-op.
func WithFetcher[T any](fetcher Fetcher[T]) Option[T] {
	return func(s *Store[T]) {
		s.fetcher = fetcher
	}
}

// WithStaleTime suppresses refetches for entries updated within d. Zero
// (the default) means every Invalidate schedules a refetch.
func WithStaleTime[T any](d time.Duration) Option[T] {
	return func(s *Store[T]) {
		s.staleTime = d
	}
}

// WithRefetchLimit caps invalidation-triggered refetches at refetchesPerSecond
// with the given burst. Excess invalidations are silently dropped; the next
// one under the limit reconciles the entry.
func WithRefetchLimit[T any](refetchesPerSecond float64, burst int) Option[T] {
	return func(s *Store[T]) {
		s.limiter = rate.NewLimiter(rate.Limit(refetchesPerSecond), burst)
	}
}

// WithMetrics instruments the store with Prometheus metrics. See
// MetricsConfig for registration options.
func WithMetrics[T any](cfg MetricsConfig) Option[T] {
	return func(s *Store[T]) {
		s.metrics = newStoreMetrics(cfg)
	}
}
