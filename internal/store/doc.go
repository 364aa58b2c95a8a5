// Package store provides SQLite-backed durable storage for batch checkpoints.
//
// The store holds two things:
//   - Checkpoints: one full BatchState snapshot per well-known key
//   - Attempts: an append-only log of every job dispatch (success or failure)
//
// # Patterns
//
// Last-write-wins snapshots
//   - Every checkpoint write is a complete snapshot, so a checkpoint write
//     racing a suspend-triggered write needs no locking beyond SQLite's own
//
// Logical ordering
//   - Attempts are ordered by seq (the orchestrator's logical clock), never
//     by timestamps
//   - UNIQUE(batch_id, seq) makes re-appending an attempt idempotent
//
// # Database Configuration
//
//   - WAL mode: status readers don't block the batch writer
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// MemoryStore implements the same methods without persistence.
package store
