// Package engine implements the operation batch processor.
//
// A batch is an ordered slice of operations applied as one unit against the
// process-wide SyncState:
//
//  1. The batch is validated (non-empty, within MaxBatchSize, every
//     operation well formed). Nothing is applied on failure.
//  2. The engine mutex is held for the whole batch. Batches are linearizable.
//  3. Operations are applied in submission order to a staged overlay. Later
//     operations see the effects of earlier ones in the same batch.
//  4. The batch is sealed: seq from the logical clock, an ID, a content
//     commitment and a chain Block.
//  5. If a store is attached the batch is persisted in one transaction.
//  6. The overlay is merged into SyncState and a result arena is returned.
//
// Conflicts (CAS mismatch, delete of an absent key) are outcomes, not errors.
// Each operation's outcome is independent of the others in its batch.
//
// Cancellation is observed only at batch boundaries, never mid-batch.
//
// Runner wraps an Engine with a FIFO queue drained by a single goroutine, for
// callers that want submission order rather than lock acquisition order.
package engine
