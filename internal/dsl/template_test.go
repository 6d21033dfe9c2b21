package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navsight/advisor/internal/facts"
	"github.com/navsight/advisor/pkg/schema"
)

func tmplCtx() *facts.Context {
	return facts.NewContext(map[string]any{
		"match_type":    map[string]any{"broad_pct": 0.52},
		"quality_score": map[string]any{"p25": 4.3},
		"spend":         map[string]any{"wasted_usd": 1234.6},
		"campaign":      map[string]any{"name": "Brand US"},
	})
}

// --- Substitution ---

func TestRenderTemplate_PlainTextPassesThrough(t *testing.T) {
	out, err := RenderTemplate("no spans here", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "no spans here", out)
}

func TestRenderTemplate_SubstitutesSpans(t *testing.T) {
	out, err := RenderTemplate(
		"Broad match is ${{ pct(value('match_type.broad_pct')) }} of spend; QS p25 is ${{ value('quality_score.p25') }}.",
		tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "Broad match is 52% of spend; QS p25 is 4.3.", out)
}

func TestRenderTemplate_USDFormatter(t *testing.T) {
	out, err := RenderTemplate("wasting ${{ usd(value('spend.wasted_usd')) }}/mo", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "wasting $1,235/mo", out)

	// Ties round to even; negatives carry the sign after the dollar symbol.
	out, err = RenderTemplate("${{ usd(1234.5) }} ${{ usd(1235.5) }} ${{ usd(0 - 1234) }}", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "$1,234 $1,236 $-1,234", out)
}

func TestRenderTemplate_FormattersHandleMissingData(t *testing.T) {
	out, err := RenderTemplate("${{ pct(value('missing')) }} / ${{ usd(value('missing')) }}", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "n/a / n/a", out)
}

func TestRenderTemplate_AbsentRendersEmpty(t *testing.T) {
	out, err := RenderTemplate("[${{ value('missing.path') }}]", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRenderTemplate_ArithmeticInSpan(t *testing.T) {
	out, err := RenderTemplate("${{ value('quality_score.p25') * 2 }}", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "8.6", out)
}

// --- Malformed templates ---

func TestRenderTemplate_UnclosedSpan(t *testing.T) {
	_, err := RenderTemplate("broken ${{ value('x')", tmplCtx(), Limits{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeActionRender, schema.CodeOf(err))
}

func TestRenderTemplate_EmptySpan(t *testing.T) {
	_, err := RenderTemplate("${{  }}", tmplCtx(), Limits{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeActionRender, schema.CodeOf(err))
}

func TestRenderTemplate_NestedSpan(t *testing.T) {
	_, err := RenderTemplate("${{ ${{ value('x') }} }}", tmplCtx(), Limits{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeActionRender, schema.CodeOf(err))
}

func TestRenderTemplate_SandboxHoldsInsideSpans(t *testing.T) {
	_, err := RenderTemplate("${{ __import__('os') }}", tmplCtx(), Limits{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeActionRender, schema.CodeOf(err))
}

// --- Param rendering ---

func TestRenderParam_WholeSpanKeepsType(t *testing.T) {
	v, err := RenderParam("${{ value('quality_score.p25') }}", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, 4.3, v)
}

func TestRenderParam_EmbeddedSpanRendersText(t *testing.T) {
	v, err := RenderParam("campaign: ${{ value('campaign.name') }}", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "campaign: Brand US", v)
}

func TestRenderParam_WholeSpanAbsentStaysAbsent(t *testing.T) {
	v, err := RenderParam("${{ value('missing.path') }}", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.True(t, facts.IsAbsent(v))
}

func TestRenderParam_PlainStringUntouched(t *testing.T) {
	v, err := RenderParam("exact", tmplCtx(), Limits{})
	require.NoError(t, err)
	assert.Equal(t, "exact", v)
}

// --- Load-time validation ---

func TestValidateTemplate_AcceptsGoodTemplates(t *testing.T) {
	require.NoError(t, ValidateTemplate("", Limits{}))
	require.NoError(t, ValidateTemplate("plain", Limits{}))
	require.NoError(t, ValidateTemplate("${{ pct(value('a.b')) }}", Limits{}))
}

func TestValidateTemplate_RejectsBadSpans(t *testing.T) {
	assert.Error(t, ValidateTemplate("${{", Limits{}))
	assert.Error(t, ValidateTemplate("${{ }}", Limits{}))
	assert.Error(t, ValidateTemplate("${{ foo }}", Limits{}))
	assert.Error(t, ValidateTemplate("${{ value(1) }}", Limits{}))
}
