// Package query provides a keyed, in-memory cache of entity collections.
//
// The store is the single source of truth the UI layer renders from. Each
// cache entry is addressed by a Key (collection name plus an optional
// canonically-serialized filter) and holds an ordered snapshot of entities
// together with fetch bookkeeping.
//
// # Core Types
//
// Store[T] is the cache:
//
//	store := query.NewStore[Subject](query.WithFetcher(fetch))
//	subjects, ok := store.Get(key)   // Read (no side effects)
//	store.Set(key, subjects)         // Atomic replace + notify
//	store.Invalidate(key)            // Mark stale, refetch in background
//
// Snapshots are immutable by convention: writers always install a newly
// built slice via Set or Update, never edit a previously installed one in
// place. That discipline is what makes snapshot retention for rollback
// cheap (see package mutate).
//
// # Subscriptions
//
// Listeners subscribe per key and are notified synchronously after each
// visible state transition:
//
//	store.Subscribe(key, listener)
//	store.Set(key, next)  // listener.MarkDirty() fires after the write
//
// # Thread Safety
//
// All store operations are safe for concurrent use. Notification uses a
// copy-before-notify pattern so no lock is held while listeners run.
package query
