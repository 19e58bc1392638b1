package mutate

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/orrery-dev/orrery/pkg/query"
)

// Remote is the persistence API the coordinator drives. T is the entity
// type, C the create payload, P the update patch. All calls block until the
// server settles and return an error on any failure, including not-found.
type Remote[T, C, P any] interface {
	Create(ctx context.Context, payload C) (T, error)
	Update(ctx context.Context, id string, patch P) (T, error)
	Delete(ctx context.Context, id string) (string, error)
}

// Coordinator applies optimistic mutations to a collection's cache entries
// and keeps them consistent with the remote outcome. One coordinator serves
// one collection on one store; instances are safe for concurrent use.
type Coordinator[T, C, P any] struct {
	store      *query.Store[T]
	remote     Remote[T, C, P]
	collection string

	identify    func(T) string
	placeholder func(C) T
	applyPatch  func(T, P) T
	touchKeys   func() []query.Key

	// mu serializes the cancel-capture-apply critical section (and the
	// later commit/rollback writes) so successive mutations observe each
	// other's optimistic applies in submission order. The remote call is
	// never made while holding it.
	mu sync.Mutex

	settleInvalidate bool
	tracer           trace.Tracer
	metrics          *coordinatorMetrics
	onStart          func(Kind)
	onSuccess        func(Kind, T)
	onError          func(Kind, error)
}

// Config carries the collection-specific hooks a Coordinator needs.
type Config[T, C, P any] struct {
	// Store is the cache the coordinator reads and writes.
	Store *query.Store[T]

	// Remote performs the persistence calls.
	Remote Remote[T, C, P]

	// Collection names the cached collection the mutations touch. Every
	// key currently cached for this collection is treated as affected.
	Collection string

	// Identify extracts an entity's stable id.
	Identify func(T) string

	// Placeholder fabricates the locally-visible entity for an optimistic
	// create, including its temporary id.
	Placeholder func(C) T

	// ApplyPatch merges a patch into an entity snapshot, returning a new
	// value. The argument must not be mutated in place.
	ApplyPatch func(T, P) T

	// TouchKeys overrides the set of cache entries a mutation touches.
	// When nil, every key currently cached for Collection is affected.
	// Keys outside the returned set are never read or written.
	TouchKeys func() []query.Key
}

// NewCoordinator builds a Coordinator from cfg. Store, Remote, Collection
// and Identify are required; Placeholder is required to use Create and
// ApplyPatch to use Update.
func NewCoordinator[T, C, P any](cfg Config[T, C, P], opts ...Option[T, C, P]) *Coordinator[T, C, P] {
	c := &Coordinator[T, C, P]{
		store:            cfg.Store,
		remote:           cfg.Remote,
		collection:       cfg.Collection,
		identify:         cfg.Identify,
		placeholder:      cfg.Placeholder,
		applyPatch:       cfg.ApplyPatch,
		touchKeys:        cfg.TouchKeys,
		settleInvalidate: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// touched records the rollback baseline for one affected cache entry.
type touched[T any] struct {
	key  query.Key
	snap query.Snapshot[T]
}

// Create optimistically prepends a placeholder entity to every cached entry
// of the collection, then performs the remote create. On success the
// placeholder is replaced with the server-confirmed entity (server-assigned
// id included); on failure every entry is restored to its captured
// snapshot. New entities go to the front of the list: the presentation is
// newest-first.
func (c *Coordinator[T, C, P]) Create(ctx context.Context, payload C) (T, error) {
	var zero T
	ctx, span := c.startSpan(ctx, KindCreate, "")
	c.notifyStart(KindCreate)

	entity := c.placeholder(payload)
	tempID := c.identify(entity)

	prev := c.applyOptimistic(func(before []T) []T {
		next := make([]T, 0, len(before)+1)
		next = append(next, entity)
		next = append(next, before...)
		return next
	})

	created, err := c.callCreate(ctx, payload)
	if err != nil {
		c.rollback(prev)
		c.settle(prev)
		c.finishSpan(span, err)
		c.notifyError(KindCreate, err)
		return zero, err
	}

	// Commit: swap the placeholder for the server copy wherever it landed.
	c.commit(prev, func(before []T) []T {
		next := make([]T, len(before))
		copy(next, before)
		for i := range next {
			if c.identify(next[i]) == tempID {
				next[i] = created
			}
		}
		return next
	})
	c.settle(prev)
	c.finishSpan(span, nil)
	c.notifySuccess(KindCreate, created)
	return created, nil
}

// Update optimistically replaces the entity with id in every cached entry,
// identity-preserving for all other entities, then performs the remote
// update. An id absent from a snapshot leaves that snapshot unchanged; the
// remote call is still attempted because the server is authoritative.
func (c *Coordinator[T, C, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	var zero T
	ctx, span := c.startSpan(ctx, KindUpdate, id)
	c.notifyStart(KindUpdate)

	prev := c.applyOptimistic(func(before []T) []T {
		return c.replaceByID(before, id, func(e T) T { return c.applyPatch(e, patch) })
	})

	updated, err := c.callUpdate(ctx, id, patch)
	if err != nil {
		c.rollback(prev)
		c.settle(prev)
		c.finishSpan(span, err)
		c.notifyError(KindUpdate, err)
		return zero, err
	}

	c.commit(prev, func(before []T) []T {
		return c.replaceByID(before, id, func(T) T { return updated })
	})
	c.settle(prev)
	c.finishSpan(span, nil)
	c.notifySuccess(KindUpdate, updated)
	return updated, nil
}

// Delete optimistically removes the entity with id from every cached entry,
// then performs the remote delete. An id not present in the cache is
// already-achieved state: the optimistic apply is a no-op, not an error.
func (c *Coordinator[T, C, P]) Delete(ctx context.Context, id string) error {
	ctx, span := c.startSpan(ctx, KindDelete, id)
	c.notifyStart(KindDelete)

	prev := c.applyOptimistic(func(before []T) []T {
		next := make([]T, 0, len(before))
		for _, e := range before {
			if c.identify(e) != id {
				next = append(next, e)
			}
		}
		return next
	})

	if err := c.callDelete(ctx, id); err != nil {
		c.rollback(prev)
		c.settle(prev)
		c.finishSpan(span, err)
		c.notifyError(KindDelete, err)
		return err
	}

	// Nothing further to commit: the optimistic removal already matches
	// the server outcome.
	c.settle(prev)
	c.finishSpan(span, nil)
	var zero T
	c.notifySuccess(KindDelete, zero)
	return nil
}

// applyOptimistic runs the cancel-capture-apply sequence for every cached
// entry of the collection as a single critical section. The returned
// snapshots are the rollback baseline. No remote work happens here, so the
// section contains no suspension point.
func (c *Coordinator[T, C, P]) applyOptimistic(transform func([]T) []T) []touched[T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []query.Key
	if c.touchKeys != nil {
		keys = c.touchKeys()
	} else {
		keys = c.store.Keys(c.collection)
	}
	prev := make([]touched[T], 0, len(keys))
	for _, key := range keys {
		// Cancellation strictly precedes the snapshot and the write, so
		// a racing background refetch can neither clobber the optimistic
		// value nor the rollback.
		c.store.CancelInFlight(key)
		prev = append(prev, touched[T]{key: key, snap: c.store.Capture(key)})
		c.store.Update(key, transform)
	}
	return prev
}

// commit installs the server-confirmed value on every touched entry.
func (c *Coordinator[T, C, P]) commit(prev []touched[T], transform func([]T) []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range prev {
		c.store.Update(t.key, transform)
	}
}

// rollback restores every touched entry to its exact captured snapshot.
func (c *Coordinator[T, C, P]) rollback(prev []touched[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range prev {
		c.store.Restore(t.key, t.snap)
	}
	c.metrics.observeRollback()
}

// settle schedules background reconciliation for every touched entry.
func (c *Coordinator[T, C, P]) settle(prev []touched[T]) {
	if !c.settleInvalidate {
		return
	}
	for _, t := range prev {
		c.store.Invalidate(t.key)
	}
}

// replaceByID returns a copy of before with the entity matching id replaced
// by fn's result. All other elements keep their identity. A missing id
// returns an equivalent copy untouched.
func (c *Coordinator[T, C, P]) replaceByID(before []T, id string, fn func(T) T) []T {
	next := make([]T, len(before))
	copy(next, before)
	for i := range next {
		if c.identify(next[i]) == id {
			next[i] = fn(next[i])
		}
	}
	return next
}

// callCreate invokes the remote create, converting panics into normalized
// errors so raw values never reach the adapter.
func (c *Coordinator[T, C, P]) callCreate(ctx context.Context, payload C) (created T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizeFailure(r)
		}
	}()
	created, err = c.remote.Create(ctx, payload)
	if err != nil {
		err = normalizeFailure(err)
	}
	return created, err
}

func (c *Coordinator[T, C, P]) callUpdate(ctx context.Context, id string, patch P) (updated T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizeFailure(r)
		}
	}()
	updated, err = c.remote.Update(ctx, id, patch)
	if err != nil {
		err = normalizeFailure(err)
	}
	return updated, err
}

func (c *Coordinator[T, C, P]) callDelete(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizeFailure(r)
		}
	}()
	if _, derr := c.remote.Delete(ctx, id); derr != nil {
		err = normalizeFailure(derr)
	}
	return err
}

// startSpan opens a tracing span for one mutation when tracing is enabled.
func (c *Coordinator[T, C, P]) startSpan(ctx context.Context, kind Kind, id string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("orrery.collection", c.collection),
		attribute.String("orrery.mutation", kind.String()),
	}
	if id != "" {
		attrs = append(attrs, attribute.String("orrery.entity_id", id))
	}
	return c.tracer.Start(ctx, "mutate."+kind.String(), trace.WithAttributes(attrs...))
}

func (c *Coordinator[T, C, P]) finishSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (c *Coordinator[T, C, P]) notifyStart(kind Kind) {
	if c.onStart != nil {
		c.onStart(kind)
	}
}

func (c *Coordinator[T, C, P]) notifySuccess(kind Kind, entity T) {
	c.metrics.observeMutation(kind, "success")
	if c.onSuccess != nil {
		c.onSuccess(kind, entity)
	}
}

func (c *Coordinator[T, C, P]) notifyError(kind Kind, err error) {
	c.metrics.observeMutation(kind, "error")
	if c.onError != nil {
		c.onError(kind, err)
	}
}
