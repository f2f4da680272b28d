package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ordokr/LMS/internal/arena"
	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/engine"
	"github.com/ordokr/LMS/internal/ir"
)

// Harness drives one scenario against a Runtime.
type Harness struct {
	rt     *bridge.Runtime
	logger *slog.Logger
}

// Run executes a scenario on a fresh in-memory store and returns the result.
// An error means the scenario could not be run at all; failed expectations
// are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine and runtime logs sent to logger.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	prefix := scenario.BatchPrefix
	if prefix == "" {
		prefix = scenario.Name
	}

	rt := bridge.NewRuntime(
		bridge.WithDBPath(":memory:"),
		bridge.WithLogger(logger),
		bridge.WithEngineOptions(
			engine.WithIDGenerator(engine.NewSequentialGenerator(prefix)),
			engine.WithLogger(logger),
		),
	)
	if err := rt.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	defer func() {
		if err := rt.Teardown(); err != nil {
			logger.Warn("runtime teardown", "scenario", scenario.Name, "error", err)
		}
	}()

	h := &Harness{rt: rt, logger: logger}
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for k, entry := range rt.Engine().Snapshot("") {
		result.State[k] = StateEntry{Value: string(entry.Value), Version: entry.Version}
	}
	for _, msg := range EvaluateAssertions(ctx, rt, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// runStep submits one batch and checks its rows or error against the step's
// expectations. Only a failure to read back a committed batch is returned
// as an error.
func (h *Harness) runStep(ctx context.Context, i int, step Step, result *Result) error {
	ops, err := bridge.ParseTextOps(step.Ops)
	if err == nil {
		var handle arena.Handle
		handle, err = h.rt.ProcessOps(ctx, ops)
		if err == nil {
			return h.recordBatch(i, step, handle, result)
		}
	}

	code := string(ir.CodeOf(err))
	if code == "" {
		return err
	}
	result.Trace = append(result.Trace, TraceEvent{Step: i, Error: code})
	switch {
	case step.ExpectError == "":
		result.AddError(fmt.Sprintf("steps[%d]: batch rejected: %v", i, err))
	case step.ExpectError != code:
		result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %s", i, step.ExpectError, code))
	}
	h.logger.Debug("scenario step rejected", "step", i, "code", code)
	return nil
}

func (h *Harness) recordBatch(i int, step Step, handle arena.Handle, result *Result) error {
	c, err := h.rt.Collect(handle)
	if err != nil {
		return err
	}

	ev := TraceEvent{Step: i, Seq: c.Block.Index, BatchID: c.ID, Hash: c.Block.Hash.String(), Results: make([]TraceRow, len(c.Rows))}
	for j, row := range c.Rows {
		ev.Results[j] = TraceRow{Key: string(row.Key), Outcome: row.Outcome.String(), NewVersion: row.NewVersion}
	}
	result.Trace = append(result.Trace, ev)

	if step.ExpectError != "" {
		result.AddError(fmt.Sprintf("steps[%d]: expected error %s, batch committed as seq %d", i, step.ExpectError, c.Block.Index))
	}
	for j, want := range step.Expect {
		got := ev.Results[j]
		if got.Key != want.Key || got.Outcome != normalizeOutcome(want.Outcome) {
			result.AddError(fmt.Sprintf("steps[%d].expect[%d]: want %s %s, got %s %s", i, j, want.Key, want.Outcome, got.Key, got.Outcome))
			continue
		}
		if want.Version != nil && got.NewVersion != *want.Version {
			result.AddError(fmt.Sprintf("steps[%d].expect[%d]: want version %d, got %d", i, j, *want.Version, got.NewVersion))
		}
	}
	h.logger.Debug("scenario step committed", "step", i, "seq", c.Block.Index, "batch_id", c.ID)
	return nil
}

func normalizeOutcome(s string) string {
	o, err := ir.ParseOutcome(s)
	if err != nil {
		return s
	}
	return o.String()
}
