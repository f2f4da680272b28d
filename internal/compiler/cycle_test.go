package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordokr/LMS/internal/ir"
)

func rule(id, whenKind, prefix, thenKind, thenKey string) ir.SyncRule {
	return ir.SyncRule{
		ID:   id,
		When: ir.WhenClause{Kind: whenKind, Prefix: prefix},
		Then: ir.ThenClause{Kind: thenKind, Key: thenKey},
	}
}

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	rules := []ir.SyncRule{
		rule("mirror", "put", "user/", "put", "mirror/${key}"),
		rule("audit", "put", "mirror/", "put", "audit/${key}"),
	}
	assert.Empty(t, AnalyzeCycles(rules))
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	rules := []ir.SyncRule{
		rule("echo", "put", "user/", "put", "user/${key}/copy"),
	}
	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"echo", "echo"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Self-triggering")
}

func TestAnalyzeCycles_TwoRuleCycle(t *testing.T) {
	rules := []ir.SyncRule{
		rule("a-to-b", "put", "a/", "put", "b/${key}"),
		rule("b-to-a", "put", "b/", "put", "a/${key}"),
		rule("unrelated", "delete", "c/", "delete", "d/x"),
	}
	warnings := AnalyzeCycles(rules)
	require.Len(t, warnings, 1)

	path := warnings[0].Path
	require.Len(t, path, 3)
	assert.Equal(t, path[0], path[2])
	assert.ElementsMatch(t, []string{"a-to-b", "b-to-a"}, path[:2])
}

func TestAnalyzeCycles_Deterministic(t *testing.T) {
	rules := []ir.SyncRule{
		rule("x", "put", "x/", "put", "y/${key}"),
		rule("y", "put", "y/", "put", "z/${key}"),
		rule("z", "put", "z/", "put", "x/${key}"),
	}
	first := AnalyzeCycles(rules)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, AnalyzeCycles(rules))
	}
}

func TestTriggers(t *testing.T) {
	tests := []struct {
		name string
		then ir.ThenClause
		when ir.WhenClause
		want bool
	}{
		{"kind mismatch", ir.ThenClause{Kind: "put", Key: "a"}, ir.WhenClause{Kind: "delete"}, false},
		{"empty prefix matches", ir.ThenClause{Kind: "put", Key: "a"}, ir.WhenClause{Kind: "put"}, true},
		{"literal key under prefix", ir.ThenClause{Kind: "put", Key: "user/1"}, ir.WhenClause{Kind: "put", Prefix: "user/"}, true},
		{"literal key outside prefix", ir.ThenClause{Kind: "put", Key: "group/1"}, ir.WhenClause{Kind: "put", Prefix: "user/"}, false},
		{"template stem shorter than prefix", ir.ThenClause{Kind: "put", Key: "us${key}"}, ir.WhenClause{Kind: "put", Prefix: "user/"}, true},
		{"template stem disjoint", ir.ThenClause{Kind: "put", Key: "grp/${key}"}, ir.WhenClause{Kind: "put", Prefix: "user/"}, false},
		{"put never conflicts", ir.ThenClause{Kind: "put", Key: "a"}, ir.WhenClause{Kind: "put", Outcome: "conflict"}, false},
		{"delete may miss", ir.ThenClause{Kind: "delete", Key: "a"}, ir.WhenClause{Kind: "delete", Outcome: "not_found"}, true},
		{"put is never not_found", ir.ThenClause{Kind: "put", Key: "a"}, ir.WhenClause{Kind: "put", Outcome: "not_found"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, triggers(tt.then, tt.when))
		})
	}
}
