// Package queryir provides the query intermediate representation used to
// read synchronized state.
//
// Queries are written in a small text language and parsed into a sealed AST:
//
//	from state where key prefix 'user/' and version >= 2 select key, value as v
//	from state join results on key where results.outcome == 'conflict' select key, results.batch_seq as seq
//
// The pipeline is
//
//	[text] → Parse → [Query] → Optimize → [Query] → querysql → [SQL]
//
// Encode and Decode give a canonical JSON form of the AST. The encoding is
// byte-stable, so an optimized query can be hashed, cached and compared.
//
// # Sealed Interfaces
//
// Query and Predicate are sealed using the marker method pattern. Only types
// in this package implement them, so backends can switch exhaustively:
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	case Join:
//	    // Handle join
//	}
//
// # Values
//
// Literal values are ir.Value (String, Int, Bool). There are no floats and no
// NULLs; a comparison against a missing field is simply false.
package queryir
