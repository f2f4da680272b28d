// Package harness runs YAML conformance scenarios against a live Runtime.
//
// A scenario is a list of batch steps followed by assertions over the final
// state, the chain and query results:
//
//	name: cas_conflict
//	steps:
//	  - ops:
//	      - {kind: put, key: a, value: "1"}
//	      - {kind: cas, key: a, expected: "0", value: "2"}
//	    expect:
//	      - {key: a, outcome: applied, version: 1}
//	      - {key: a, outcome: conflict}
//	assertions:
//	  - {type: final_state, key: a, value: "1", version: 1}
//	  - {type: chain_valid}
//
// Each scenario runs on a fresh in-memory SQLite store with batch IDs
// derived from the scenario name, so the trace of sealed blocks is
// byte-for-byte reproducible and can be compared against a golden file.
package harness
