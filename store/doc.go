// Package store provides durable records for annotation tasks and their
// annotation trail.
//
// Two interfaces split the persistence concerns: TaskStore holds the only
// shared mutable state in the system (task status, stage, claimant), while
// AnnotationStore is append-only and free of update conflicts.
//
// Claim exclusivity is the one hard concurrency requirement. Every backend
// implements ClaimOldestPending as a single atomic select-and-mark:
//
//   - MemoryStore: selection and mark under one write lock
//   - BoltStore: one bbolt write transaction (bbolt serializes writers)
//   - PostgresStore: conditional UPDATE over FOR UPDATE SKIP LOCKED
//
// All other task mutations go through UpdateFrom, a compare-and-swap on the
// status and claimed_by columns: writers race safely and the loser gets
// ErrStaleStatus or ErrStaleClaim instead of overwriting newer state.
package store
