// Package mutate implements the optimistic-update protocol over a query
// cache store.
//
// A Coordinator orchestrates each mutation kind (create, update, delete)
// uniformly:
//
//  1. Cancel in-flight fetches for every cache entry the mutation touches.
//  2. Capture each entry's current snapshot as the rollback baseline.
//  3. Apply the optimistic transformation synchronously.
//  4. Invoke the remote call (the only suspension point).
//  5. On success, commit the server-confirmed entity; on failure, restore
//     every captured snapshot exactly and surface a non-empty error.
//  6. Settle: invalidate touched entries so background refetch reconciles
//     any server-side effects the optimistic model could not predict.
//
// Steps 1–3 run as one critical section per coordinator, so two rapid-fire
// mutations against the same store are serialized in submission order: the
// second mutation's snapshot always sees the first one's optimistic apply.
// The remote call runs outside that section.
//
// Mutations are atomic from the cache's point of view: fully committed or
// fully rolled back, never partially applied. The coordinator never retries
// a failed remote call; retry is a fresh user-initiated mutation.
package mutate
