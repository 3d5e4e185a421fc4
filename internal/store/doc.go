// Package store provides SQLite-backed durable storage for binding traces.
//
// The store is an append-only journal with:
//   - Runs: one row per binding run, identified by its run id and the hash
//     of the binding description it ran
//   - Events: the trace events of a run, keyed by (run_id, seq)
//
// Ordering uses the run's logical seq, never timestamps, so two runs of the
// same description over the same inputs produce identical journals and can
// be compared event by event.
//
// Writes are idempotent: re-recording a run or an event with the same key
// is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Events must belong to a recorded run
package store
