package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navsight/advisor/pkg/schema"
)

func cand(id, typ string, priority, ruleIndex, inputIndex int, key string, maxPerType int) candidate {
	return candidate{
		action: schema.Action{
			ID:           id,
			Type:         typ,
			Priority:     priority,
			SourceRuleID: id,
		},
		ruleIndex:  ruleIndex,
		inputIndex: inputIndex,
		dedupeKey:  key,
		maxPerType: maxPerType,
	}
}

// --- Dedupe ---

func TestReduce_CollidingKeysMergeKeepingMostUrgent(t *testing.T) {
	out := reduce([]candidate{
		cand("A", "negatives", 3, 0, 0, "k", 0),
		cand("B", "negatives", 1, 1, 1, "k", 0),
		cand("C", "negatives", 2, 2, 2, "k", 0),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].ID)
}

func TestReduce_KeyTiesBreakByDeclarationOrder(t *testing.T) {
	out := reduce([]candidate{
		cand("LATER", "negatives", 2, 5, 0, "k", 0),
		cand("EARLIER", "negatives", 2, 1, 1, "k", 0),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "EARLIER", out[0].ID)
}

func TestReduce_EmptyKeysNeverMerge(t *testing.T) {
	out := reduce([]candidate{
		cand("A", "other", 3, 0, 0, "", 0),
		cand("B", "other", 3, 1, 1, "", 0),
	})
	assert.Len(t, out, 2)
}

// --- Capping ---

func TestReduce_CapKeepsMostUrgent(t *testing.T) {
	out := reduce([]candidate{
		cand("P5", "negatives", 5, 0, 0, "", 2),
		cand("P1", "negatives", 1, 1, 1, "", 2),
		cand("P4", "negatives", 4, 2, 2, "", 2),
		cand("P2", "negatives", 2, 3, 3, "", 2),
		cand("P3", "negatives", 3, 4, 4, "", 2),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "P1", out[0].ID)
	assert.Equal(t, "P2", out[1].ID)
}

func TestReduce_CapAppliesPerType(t *testing.T) {
	out := reduce([]candidate{
		cand("N1", "negatives", 1, 0, 0, "", 1),
		cand("N2", "negatives", 2, 1, 1, "", 1),
		cand("G1", "geo_exclude", 3, 2, 2, "", 0),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "N1", out[0].ID)
	assert.Equal(t, "G1", out[1].ID)
}

func TestReduce_SmallestDeclaredCapWins(t *testing.T) {
	out := reduce([]candidate{
		cand("A", "negatives", 1, 0, 0, "", 3),
		cand("B", "negatives", 2, 1, 1, "", 1),
		cand("C", "negatives", 3, 2, 2, "", 3),
	})
	assert.Len(t, out, 1)
}

// --- Final ordering ---

func TestReduce_OrderIsPriorityThenDeclarationThenInput(t *testing.T) {
	out := reduce([]candidate{
		cand("D", "other", 3, 4, 0, "", 0),
		cand("C", "other", 2, 2, 1, "", 0),
		cand("A", "other", 1, 3, 2, "", 0),
		cand("B", "other", 2, 1, 3, "", 0),
	})
	require.Len(t, out, 4)
	assert.Equal(t, []string{"A", "B", "C", "D"}, []string{out[0].ID, out[1].ID, out[2].ID, out[3].ID})
}

func TestReduce_EmptyInput(t *testing.T) {
	assert.Empty(t, reduce(nil))
}

// --- Through the engine: dedupe and capping with rendered keys ---

func TestEvaluate_DedupeCollapsesAcrossRules(t *testing.T) {
	eng := newEngine(t, `
- id: URGENT
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: campaign_a}
  priority: 1
  dedupe_key: "negatives:${{ value('account.id') }}"
- id: ROUTINE
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: campaign_a}
  priority: 4
  dedupe_key: "negatives:${{ value('account.id') }}"
`)
	actions, err := eng.Evaluate(context.Background(), auditSnapshot())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "URGENT", actions[0].SourceRuleID)
}

func TestEvaluate_EmptyRenderedDedupeKeyDropsAction(t *testing.T) {
	// The key's only span resolves to absent, so the rendered key is empty and
	// the action's dedupe identity is unknown.
	var dropped string
	obs := &recordingObserver{onDropped: func(ruleID string) { dropped = ruleID }}
	eng := New(loadSet(t, `
- id: NO_IDENTITY
  if_all: [{expr: "true"}]
  action: {type: other, target: t}
  dedupe_key: "${{ value('no.such.field') }}"
- id: KEYLESS
  if_all: [{expr: "true"}]
  action: {type: other, target: t}
`), Config{Telemetry: true, Observer: obs})

	actions, err := eng.Evaluate(context.Background(), auditSnapshot())
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "KEYLESS", actions[0].SourceRuleID)
	assert.Equal(t, "NO_IDENTITY", dropped)
}

func TestEvaluate_CapTruncatesPerType(t *testing.T) {
	eng := newEngine(t, `
- id: R1
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: a}
  priority: 5
  max_per_type: 2
- id: R2
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: b}
  priority: 1
  max_per_type: 2
- id: R3
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: c}
  priority: 4
  max_per_type: 2
- id: R4
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: d}
  priority: 2
  max_per_type: 2
- id: R5
  if_all: [{expr: "true"}]
  action: {type: add_negatives, target: e}
  priority: 3
  max_per_type: 2
`)
	actions, err := eng.Evaluate(context.Background(), auditSnapshot())
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "R2", actions[0].SourceRuleID)
	assert.Equal(t, "R4", actions[1].SourceRuleID)
}
