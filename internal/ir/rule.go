package ir

import "encoding/json"

// SyncRule is a compiled reactive rule: when an operation of a given kind
// touches a key under Prefix (optionally with a given outcome), evaluate the
// where query and emit the then operation.
type SyncRule struct {
	ID    string       `json:"id"`
	When  WhenClause   `json:"when"`
	Where *WhereClause `json:"where,omitempty"` // Optional
	Then  ThenClause   `json:"then"`
}

// WhenClause selects the triggering operations.
type WhenClause struct {
	Kind    string `json:"kind"`              // "put", "delete" or "cas"
	Prefix  string `json:"prefix"`            // key prefix, "" matches every key
	Outcome string `json:"outcome,omitempty"` // "" matches any outcome
}

// WhereClause holds the query text and its serialized, optimized AST.
type WhereClause struct {
	Query string          `json:"query"`
	AST   json.RawMessage `json:"ast,omitempty"`
}

// ThenClause is the operation template emitted by the rule.
// Key and Value may reference "${key}" and "${value}" of the trigger.
type ThenClause struct {
	Kind  string `json:"kind"` // "put" or "delete"
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// ValidRuleKinds are the operation kinds a when clause may name.
var ValidRuleKinds = map[string]bool{
	"put":    true,
	"delete": true,
	"cas":    true,
}
