package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/ir"
)

// Scenario is one conformance test.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// BatchPrefix seeds batch IDs (prefix-1, prefix-2, ...). Defaults to Name.
	BatchPrefix string `yaml:"batch_prefix,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step submits one batch.
type Step struct {
	Ops []bridge.TextOp `yaml:"ops"`

	// Expect lists the expected rows in order. When nil rows are not checked.
	Expect []RowExpect `yaml:"expect,omitempty"`

	// ExpectError is the error code the batch must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// RowExpect matches one result row. Version is checked only when set.
type RowExpect struct {
	Key     string  `yaml:"key"`
	Outcome string  `yaml:"outcome"`
	Version *uint64 `yaml:"version,omitempty"`
}

// Assertion validates the final state of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key, Value and Version are used by final_state and absent. Version is
	// optional.
	Key     string  `yaml:"key,omitempty"`
	Value   *string `yaml:"value,omitempty"`
	Version *uint64 `yaml:"version,omitempty"`

	// Seq is the expected last committed sequence number (head_seq).
	Seq *uint64 `yaml:"seq,omitempty"`

	// Query, Bound and Rows are used by query. Rows is compared exactly;
	// Count only checks the row count.
	Query string         `yaml:"query,omitempty"`
	Bound map[string]any `yaml:"bound,omitempty"`
	Rows  [][]any        `yaml:"rows,omitempty"`
	Count *int           `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertFinalState = "final_state"
	AssertAbsent     = "absent"
	AssertChainValid = "chain_valid"
	AssertHeadSeq    = "head_seq"
	AssertQuery      = "query"
)

// LoadScenario reads a scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one batch")
	}
	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	if step.ExpectError != "" && step.Expect != nil {
		return fmt.Errorf("steps[%d]: expect and expect_error are mutually exclusive", index)
	}
	if step.Expect != nil && len(step.Expect) != len(step.Ops) {
		return fmt.Errorf("steps[%d]: expect has %d rows for %d ops", index, len(step.Expect), len(step.Ops))
	}
	for j, row := range step.Expect {
		if _, err := ir.ParseOutcome(row.Outcome); err != nil {
			return fmt.Errorf("steps[%d].expect[%d]: %w", index, j, err)
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for final_state", index)
		}
		if a.Value == nil && a.Version == nil {
			return fmt.Errorf("assertions[%d]: final_state needs value or version", index)
		}
	case AssertAbsent:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for absent", index)
		}
	case AssertChainValid:
	case AssertHeadSeq:
		if a.Seq == nil {
			return fmt.Errorf("assertions[%d]: seq is required for head_seq", index)
		}
	case AssertQuery:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for query", index)
		}
		if a.Rows == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: query needs rows or count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
