package harness

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/chain"
	"github.com/ordokr/LMS/internal/ir"
)

// EvaluateAssertions checks every assertion against rt and returns one
// message per failure, in assertion order.
func EvaluateAssertions(ctx context.Context, rt *bridge.Runtime, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(ctx, rt, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}
	return failures
}

func evaluate(ctx context.Context, rt *bridge.Runtime, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		return assertFinalState(rt, a)
	case AssertAbsent:
		if _, ok := rt.Engine().Get([]byte(a.Key)); ok {
			return fmt.Errorf("key %q is present", a.Key)
		}
		return nil
	case AssertChainValid:
		return assertChainValid(ctx, rt)
	case AssertHeadSeq:
		if got := rt.Engine().Head().Index; got != *a.Seq {
			return fmt.Errorf("want seq %d, got %d", *a.Seq, got)
		}
		return nil
	case AssertQuery:
		return assertQuery(ctx, rt, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertFinalState(rt *bridge.Runtime, a Assertion) error {
	entry, ok := rt.Engine().Get([]byte(a.Key))
	if !ok {
		return fmt.Errorf("key %q not found", a.Key)
	}
	if a.Value != nil && !bytes.Equal(entry.Value, []byte(*a.Value)) {
		return fmt.Errorf("key %q: want value %q, got %q", a.Key, *a.Value, entry.Value)
	}
	if a.Version != nil && entry.Version != *a.Version {
		return fmt.Errorf("key %q: want version %d, got %d", a.Key, *a.Version, entry.Version)
	}
	return nil
}

// assertChainValid checks the committed blocks form one chain from genesis
// that ends at the engine's head.
func assertChainValid(ctx context.Context, rt *bridge.Runtime) error {
	e := rt.Engine()
	infos, err := e.Blocks(ctx, 0, 0)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		return nil
	}
	blocks := make([]ir.Block, len(infos))
	for i, info := range infos {
		blocks[i] = info.Block
	}
	if !blocks[0].PrevHash.IsZero() {
		return fmt.Errorf("first block does not start at genesis")
	}
	hashes := chain.Hashes(blocks)
	if valid, first := rt.CheckChain(chain.EncodeHashes(hashes), len(hashes)); !valid {
		return fmt.Errorf("link broken at block %d", first)
	}
	if head := e.Head(); head.Hash != hashes[len(hashes)-1] {
		return fmt.Errorf("head %s is not the last block", head.Hash)
	}
	return nil
}

func assertQuery(ctx context.Context, rt *bridge.Runtime, a Assertion) error {
	res, err := rt.RunQuery(ctx, a.Query, a.Bound)
	if err != nil {
		return err
	}
	if a.Count != nil && len(res.Rows) != *a.Count {
		return fmt.Errorf("want %d rows, got %d", *a.Count, len(res.Rows))
	}
	if a.Rows == nil {
		return nil
	}
	want, err := canonicalRows(a.Rows)
	if err != nil {
		return fmt.Errorf("expected rows: %w", err)
	}
	got, err := canonicalRows(res.Rows)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	if want != got {
		return fmt.Errorf("want rows %s, got %s", want, got)
	}
	return nil
}

// canonicalRows renders rows as canonical JSON so YAML integers and SQLite
// int64 columns compare equal.
func canonicalRows(rows [][]any) (string, error) {
	arr := make([]any, len(rows))
	for i, row := range rows {
		arr[i] = row
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
