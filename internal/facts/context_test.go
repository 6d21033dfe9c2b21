package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot() *Context {
	return NewContext(map[string]any{
		"account": map[string]any{
			"id":       "acc-1",
			"currency": "USD",
			"archived": nil,
		},
		"match_type": map[string]any{
			"broad_pct": 0.52,
		},
		"findings": []any{
			map[string]any{"category": "keywords", "score": 4.0},
			map[string]any{"category": "placements", "score": 2.0},
			map[string]any{"category": "keywords", "score": 7.0},
		},
		"terms": []any{"a", "b", "c", "d"},
	})
}

// --- Basic traversal ---

func TestResolve_NestedKey(t *testing.T) {
	c := snapshot()
	assert.Equal(t, "acc-1", c.Resolve("account.id"))
	assert.Equal(t, 0.52, c.Resolve("match_type.broad_pct"))
}

func TestResolve_MissingPathYieldsAbsent(t *testing.T) {
	c := snapshot()
	assert.True(t, IsAbsent(c.Resolve("account.missing")))
	assert.True(t, IsAbsent(c.Resolve("no.such.path")))
}

func TestResolve_TraverseIntoScalarYieldsAbsent(t *testing.T) {
	c := snapshot()
	assert.True(t, IsAbsent(c.Resolve("account.id.deeper")))
}

func TestResolve_ExplicitNullNormalizesToAbsent(t *testing.T) {
	c := snapshot()
	assert.True(t, IsAbsent(c.Resolve("account.archived")))
}

func TestResolveDefault_UsedOnMiss(t *testing.T) {
	c := snapshot()
	assert.Equal(t, 0, c.ResolveDefault("account.missing", 0))
	assert.Equal(t, "acc-1", c.ResolveDefault("account.id", "fallback"))
}

// --- Indexing and slicing ---

func TestResolve_Index(t *testing.T) {
	c := snapshot()
	assert.Equal(t, "a", c.Resolve("terms[0]"))
	assert.Equal(t, "d", c.Resolve("terms[-1]"))
}

func TestResolve_IndexOutOfRangeYieldsAbsent(t *testing.T) {
	c := snapshot()
	assert.True(t, IsAbsent(c.Resolve("terms[9]")))
	assert.True(t, IsAbsent(c.Resolve("terms[-9]")))
}

func TestResolve_Slice(t *testing.T) {
	c := snapshot()
	assert.Equal(t, []any{"a", "b"}, c.Resolve("terms[:2]"))
	assert.Equal(t, []any{"c", "d"}, c.Resolve("terms[2:]"))
	assert.Equal(t, []any{"b", "c"}, c.Resolve("terms[1:3]"))
}

func TestResolve_SliceBoundsClamp(t *testing.T) {
	c := snapshot()
	assert.Equal(t, []any{"a", "b", "c", "d"}, c.Resolve("terms[:25]"))
	assert.Equal(t, []any{}, c.Resolve("terms[3:1]"))
}

func TestResolve_IndexIntoNestedField(t *testing.T) {
	c := snapshot()
	assert.Equal(t, 2.0, c.Resolve("findings[1].score"))
}

// --- Filters ---

func TestResolve_FilterSelectsMatchingEntries(t *testing.T) {
	c := snapshot()
	got := c.Resolve("findings[category=keywords]")
	list, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, 4.0, list[0].(map[string]any)["score"])
	assert.Equal(t, 7.0, list[1].(map[string]any)["score"])
}

func TestResolve_FilterThenIndex(t *testing.T) {
	c := snapshot()
	assert.Equal(t, 7.0, c.Resolve("findings[category=keywords][1].score"))
}

func TestResolve_FilterNumericLiteral(t *testing.T) {
	c := snapshot()
	got := c.Resolve("findings[score=7]")
	list, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
}

func TestResolve_FilterNoMatchesYieldsEmptyList(t *testing.T) {
	c := snapshot()
	got := c.Resolve("findings[category=video]")
	list, ok := got.([]any)
	require.True(t, ok)
	assert.Empty(t, list)
}

// --- Path validation ---

func TestResolve_RejectedCharactersYieldDefault(t *testing.T) {
	c := snapshot()
	assert.True(t, IsAbsent(c.Resolve("account.id;drop")))
	assert.True(t, IsAbsent(c.Resolve("account.id\n")))
	assert.True(t, IsAbsent(c.Resolve("")))
}

func TestResolve_MalformedBracketsYieldDefault(t *testing.T) {
	c := snapshot()
	assert.True(t, IsAbsent(c.Resolve("terms[0")))
	assert.True(t, IsAbsent(c.Resolve("terms[x]")))
	assert.True(t, IsAbsent(c.Resolve("terms]0[")))
}
