package bridge

import (
	"encoding/json"

	"github.com/ordokr/LMS/internal/compiler"
	"github.com/ordokr/LMS/internal/queryir"
)

// ParseRule compiles CUE rule text holding exactly one rule and returns a
// handle to its JSON serialization. Compile or validation failure returns
// the zero handle.
func (r *Runtime) ParseRule(text string) StringHandle {
	rule, err := compiler.ParseRule(text)
	if err != nil {
		r.logger.Debug("parse rule failed", "error", err)
		return 0
	}
	if errs := compiler.Validate(rule); len(errs) > 0 {
		r.logger.Debug("rule failed validation", "rule", rule.ID, "errors", len(errs), "first", errs[0].Error())
		return 0
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return 0
	}
	return r.ownString(string(data))
}

// ParseQuery parses query text and returns a handle to its canonical AST.
// Parse failure returns the zero handle.
func (r *Runtime) ParseQuery(text string) StringHandle {
	q, err := queryir.Parse(text)
	if err != nil {
		r.logger.Debug("parse query failed", "error", err)
		return 0
	}
	data, err := queryir.Encode(q)
	if err != nil {
		return 0
	}
	return r.ownString(string(data))
}

// OptimizeQuery decodes a serialized query, optimizes it and returns a
// handle to the optimized serialization. Malformed input returns the zero
// handle.
func (r *Runtime) OptimizeQuery(serialized string) StringHandle {
	q, err := queryir.Decode([]byte(serialized))
	if err != nil {
		r.logger.Debug("optimize query: malformed input", "error", err)
		return 0
	}
	data, err := queryir.Encode(queryir.Optimize(q))
	if err != nil {
		return 0
	}
	return r.ownString(string(data))
}

// String returns the string behind h without transferring ownership.
//
// Errors: NOT_INITIALIZED, INVALID_HANDLE, STALE_HANDLE.
func (r *Runtime) String(h StringHandle) (string, error) {
	release, err := r.acquire()
	if err != nil {
		return "", err
	}
	defer release()
	return r.strings.Get(h)
}

// FreeString releases the string behind h. Freeing twice reports
// STALE_HANDLE.
func (r *Runtime) FreeString(h StringHandle) error {
	release, err := r.acquire()
	if err != nil {
		return err
	}
	defer release()
	_, err = r.strings.Remove(h)
	return err
}

func (r *Runtime) ownString(s string) StringHandle {
	release, err := r.acquire()
	if err != nil {
		return 0
	}
	defer release()
	return r.strings.Insert(s)
}
