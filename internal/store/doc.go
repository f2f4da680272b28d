// Package store provides SQLite-backed durable storage for lmssync.
//
// Tables:
//   - sync_state: the latest value and version of every key (tombstones kept)
//   - batches: one row per committed batch; also the hash chain
//   - batch_results: the ordered outcome rows of every batch
//
// A batch is committed in exactly one transaction (CommitBatch), so after a
// crash the database holds either all of a batch or none of it.
//
// Ordering uses seq (logical clock), never timestamps. Every multi-row read
// has an explicit ORDER BY.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
