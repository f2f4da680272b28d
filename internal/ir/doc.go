// Package ir defines the data model shared by every lmssync package.
//
// Operations, ResultRows and Blocks are plain values. Anything that is hashed
// (batch commitments, serialized query ASTs) goes through MarshalCanonical so
// the bytes are stable across processes and platforms.
//
// Caller-contract violations are reported as *EngineError with a code;
// data conflicts are never errors, they are Outcomes in a ResultRow.
package ir
