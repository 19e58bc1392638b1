package query

import (
	"context"
	"sync"
	"time"
)

// Status describes the fetch state of a cache entry.
type Status int

const (
	// StatusIdle means no fetch is in progress.
	StatusIdle Status = iota

	// StatusFetching means a background fetch is in flight.
	StatusFetching

	// StatusError means the most recent fetch failed. The cached data, if
	// any, is still served.
	StatusError
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Fetcher loads the authoritative collection for a key. It is invoked by
// Invalidate on a background goroutine; the context is cancelled when the
// fetch is superseded via CancelInFlight or a newer Invalidate.
type Fetcher[T any] func(ctx context.Context, key Key) ([]T, error)

// Snapshot is a point-in-time capture of a cache entry's visible value,
// including whether the entry held a value at all. Restoring a Snapshot
// reinstates exactly what was captured.
type Snapshot[T any] struct {
	Data    []T
	Present bool
}

// entry holds one cached collection plus its bookkeeping.
type entry[T any] struct {
	data      []T
	present   bool
	status    Status
	fetchErr  error
	updatedAt time.Time

	// subs are the listeners subscribed to this entry.
	subs []Listener

	// fetchSeq identifies the current fetch generation. A completing
	// fetch applies its result only if its generation is still current,
	// which is what makes CancelInFlight effect-free by guarantee.
	fetchSeq uint64

	// cancel aborts the in-flight fetch, if any.
	cancel context.CancelFunc
}

// Store is a keyed, in-memory cache of entity collections. The zero value
// is not usable; construct instances with NewStore. Stores are injectable:
// there is no package-level singleton, so each test can run against its
// own isolated instance.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[Key]*entry[T]

	fetcher   Fetcher[T]
	staleTime time.Duration
	limiter   refetchLimiter
	metrics   *storeMetrics
}

// NewStore creates an empty store.
func NewStore[T any](opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		entries: make(map[Key]*entry[T]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current cached snapshot for key. The second return is
// false when the key has never been populated. Get has no side effects and
// callers must not mutate the returned slice.
func (s *Store[T]) Get(key Key) ([]T, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || !e.present {
		s.mu.Unlock()
		s.metrics.observeGet(false)
		return nil, false
	}
	data := e.data
	s.mu.Unlock()

	s.metrics.observeGet(true)
	return data, true
}

// Capture returns a Snapshot of the entry's current visible value, suitable
// as a rollback baseline. Capturing an absent entry yields a Snapshot whose
// restoration removes the value again.
func (s *Store[T]) Capture(key Key) Snapshot[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.present {
		return Snapshot[T]{}
	}
	return Snapshot[T]{Data: e.data, Present: true}
}

// Set atomically replaces the cached value for key and notifies subscribers
// after the transition is visible. Writing to a key that was never fetched
// seeds the entry.
func (s *Store[T]) Set(key Key, value []T) {
	s.mu.Lock()
	e := s.entry(key)
	e.data = value
	e.present = true
	e.updatedAt = time.Now()
	subs := copySubs(e.subs)
	s.mu.Unlock()

	s.metrics.observeSet()
	notify(subs)
}

// Update applies a pure transformation to the current snapshot and installs
// the result as the new value. fn receives the previous snapshot (nil when
// absent) and must return a new slice rather than editing its argument;
// the previous snapshot stays valid for anyone who captured it.
func (s *Store[T]) Update(key Key, fn func(prev []T) []T) {
	if fn == nil {
		return
	}

	s.mu.Lock()
	e := s.entry(key)
	var prev []T
	if e.present {
		prev = e.data
	}
	e.data = fn(prev)
	e.present = true
	e.updatedAt = time.Now()
	subs := copySubs(e.subs)
	s.mu.Unlock()

	s.metrics.observeSet()
	notify(subs)
}

// Restore reinstates a previously captured Snapshot, including absence.
// Subscribers are notified of the transition.
func (s *Store[T]) Restore(key Key, snap Snapshot[T]) {
	s.mu.Lock()
	e := s.entry(key)
	e.data = snap.Data
	e.present = snap.Present
	e.updatedAt = time.Now()
	subs := copySubs(e.subs)
	s.mu.Unlock()

	s.metrics.observeRestore()
	notify(subs)
}

// CancelInFlight aborts any outstanding fetch for key so it cannot clobber
// a write that is about to be applied. The guarantee is generational: even
// a fetch that has already left its goroutine will find its generation
// superseded and discard its result. Calling this on a key with no fetch
// in flight is a no-op.
func (s *Store[T]) CancelInFlight(key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.fetchSeq++
	cancel := e.cancel
	e.cancel = nil
	if e.status == StatusFetching {
		e.status = StatusIdle
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Invalidate marks the entry stale and schedules a background refetch
// through the configured fetcher. It never changes the value returned by
// Get synchronously. Without a fetcher, or when the refetch rate limit is
// exceeded, the entry is simply left as-is.
func (s *Store[T]) Invalidate(key Key) {
	s.metrics.observeInvalidate()

	if s.fetcher == nil {
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.metrics.observeRefetch("dropped")
		return
	}

	s.mu.Lock()
	e := s.entry(key)
	if s.staleTime > 0 && e.present && time.Since(e.updatedAt) < s.staleTime {
		s.mu.Unlock()
		return
	}
	// Supersede any fetch already in flight.
	e.fetchSeq++
	seq := e.fetchSeq
	if e.cancel != nil {
		e.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.status = StatusFetching
	e.fetchErr = nil
	s.mu.Unlock()

	go s.runFetch(ctx, key, seq)
}

// runFetch executes one fetch generation and applies the result only if the
// generation is still current when it completes.
func (s *Store[T]) runFetch(ctx context.Context, key Key, seq uint64) {
	data, err := s.fetcher(ctx, key)

	if ctx.Err() != nil {
		s.metrics.observeRefetch("canceled")
		return
	}

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.fetchSeq != seq {
		s.mu.Unlock()
		s.metrics.observeRefetch("canceled")
		return
	}
	e.cancel = nil
	if err != nil {
		e.status = StatusError
		e.fetchErr = err
		s.mu.Unlock()
		s.metrics.observeRefetch("error")
		return
	}
	e.data = data
	e.present = true
	e.status = StatusIdle
	e.updatedAt = time.Now()
	subs := copySubs(e.subs)
	s.mu.Unlock()

	s.metrics.observeRefetch("success")
	notify(subs)
}

// Status returns the fetch status for key. Unknown keys report StatusIdle.
func (s *Store[T]) Status(key Key) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e.status
	}
	return StatusIdle
}

// FetchErr returns the error recorded by the most recent failed refetch for
// key, or nil.
func (s *Store[T]) FetchErr(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e.fetchErr
	}
	return nil
}

// UpdatedAt returns when the entry's value last changed. The zero time
// means the key has never been written.
func (s *Store[T]) UpdatedAt(key Key) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		return e.updatedAt
	}
	return time.Time{}
}

// Keys returns every key currently cached for the given collection. The
// mutation coordinator uses this to enumerate the entries a collection-wide
// mutation touches.
func (s *Store[T]) Keys(collection string) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []Key
	for k, e := range s.entries {
		if k.Collection == collection && e.present {
			keys = append(keys, k)
		}
	}
	return keys
}

// Subscribe registers a listener for changes to key. Subscribing the same
// listener twice is a no-op (deduplicated by ID).
func (s *Store[T]) Subscribe(key Key, l Listener) {
	if l == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key)
	lid := l.ID()
	for _, existing := range e.subs {
		if existing.ID() == lid {
			return
		}
	}
	e.subs = append(e.subs, l)
}

// Unsubscribe removes a listener from key's subscribers.
func (s *Store[T]) Unsubscribe(key Key, l Listener) {
	if l == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	lid := l.ID()
	for i, existing := range e.subs {
		if existing.ID() == lid {
			// Remove by swapping with last element (order doesn't matter)
			e.subs[i] = e.subs[len(e.subs)-1]
			e.subs = e.subs[:len(e.subs)-1]
			return
		}
	}
}

// Len returns the number of populated entries.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.present {
			n++
		}
	}
	return n
}

// entry returns the bookkeeping record for key, creating it if absent.
// Callers must hold s.mu.
func (s *Store[T]) entry(key Key) *entry[T] {
	e, ok := s.entries[key]
	if !ok {
		e = &entry[T]{}
		s.entries[key] = e
	}
	return e
}

// copySubs copies a subscriber slice so notification can run lock-free.
func copySubs(subs []Listener) []Listener {
	if len(subs) == 0 {
		return nil
	}
	out := make([]Listener, len(subs))
	copy(out, subs)
	return out
}

// notify marks every listener dirty, outside any store lock.
func notify(subs []Listener) {
	for _, sub := range subs {
		sub.MarkDirty()
	}
}
