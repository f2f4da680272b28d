package harness

// TraceRow is one result row of a traced batch.
type TraceRow struct {
	Key        string `json:"key"`
	Outcome    string `json:"outcome"`
	NewVersion uint64 `json:"new_version"`
}

// TraceEvent records one step. A rejected batch has Error set and no block.
type TraceEvent struct {
	Step    int        `json:"step"`
	Seq     uint64     `json:"seq,omitempty"`
	BatchID string     `json:"batch_id,omitempty"`
	Hash    string     `json:"hash,omitempty"`
	Results []TraceRow `json:"results,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// StateEntry is a live key in the final state.
type StateEntry struct {
	Value   string `json:"value"`
	Version uint64 `json:"version"`
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool                  `json:"pass"`
	Trace  []TraceEvent          `json:"trace"`
	Errors []string              `json:"errors,omitempty"`
	State  map[string]StateEntry `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  map[string]StateEntry{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
