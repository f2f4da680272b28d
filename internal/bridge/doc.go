// Package bridge is the boundary surface of the sync engine.
//
// A Runtime owns the engine, the optional durable store and two handle
// tables: one for result arenas returned by ProcessBatch, one for strings
// returned by the parse and optimize entry points. Every handle is
// generation-checked, so use after free and double free are reported as
// ir.ErrCodeStaleHandle instead of aliasing a newer value.
//
// Operation buffers are CBOR arrays of ir.Operation (integer map keys, see
// EncodeOperations). Chain buffers are contiguous 32-byte hashes.
package bridge
