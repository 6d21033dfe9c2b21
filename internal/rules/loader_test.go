package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/pkg/schema"
)

const validRules = `
- id: BROAD_WASTE
  description: Broad match dominates spend
  if_all:
    - expr: "value('match_type.broad_pct') >= 0.40"
    - expr: "value('quality_score.p25') < 5"
  action:
    type: tighten_match_types
    target: campaigns_with_broad
    params:
      match_type: exact
  justification_template: "Broad is ${{ pct(value('match_type.broad_pct')) }} of spend."
  expected_impact:
    spend_savings_usd: "value('spend.wasted_usd') * 0.3"
    risk: low
  priority: 1
  dedupe_key: "match_types:${{ value('account.id') }}"
  max_per_type: 2

- id: QS_LOW
  if_all:
    - expr: "value('quality_score.p25') < 5"
  action:
    type: creative_refresh
    target: low_qs_ads
`

func parseRules(t *testing.T, src string) (*schema.RuleSet, error) {
	t.Helper()
	return Parse([]byte(src), "test.yaml", dsl.Limits{})
}

// --- Happy path ---

func TestParse_ValidRuleSet(t *testing.T) {
	rs, err := parseRules(t, validRules)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())

	first := rs.Rules[0]
	assert.Equal(t, "BROAD_WASTE", first.ID)
	assert.Len(t, first.IfAll, 2)
	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, 2, first.MaxPerType)
	assert.Equal(t, schema.DefaultConfidence, first.Confidence)

	// Defaults applied to the sparse rule.
	second := rs.Rules[1]
	assert.Equal(t, schema.PriorityDefault, second.Priority)
	assert.Equal(t, schema.DefaultConfidence, second.Confidence)
}

func TestParse_DeclarationOrderPreserved(t *testing.T) {
	rs, err := parseRules(t, validRules)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.IndexOf("BROAD_WASTE"))
	assert.Equal(t, 1, rs.IndexOf("QS_LOW"))
	assert.Equal(t, -1, rs.IndexOf("NOPE"))
}

func TestParse_JSONDocumentAccepted(t *testing.T) {
	src := `[{"id":"R1","if_all":[{"expr":"true"}],"action":{"type":"other","target":"t"}}]`
	rs, err := parseRules(t, src)
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())
}

func TestParse_EmptyDocument(t *testing.T) {
	rs, err := parseRules(t, "")
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}

// --- Load-time failures: a malformed set never half-loads ---

func TestParse_DuplicateIDs(t *testing.T) {
	src := `
- id: R1
  if_all: [{expr: "true"}]
  action: {type: other, target: a}
- id: R1
  if_all: [{expr: "true"}]
  action: {type: other, target: b}
`
	_, err := parseRules(t, src)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParse_MissingRequiredFields(t *testing.T) {
	for name, src := range map[string]string{
		"no id":     `[{"if_all":[{"expr":"true"}],"action":{"type":"other","target":"t"}}]`,
		"no if_all": `[{"id":"R1","action":{"type":"other","target":"t"}}]`,
		"no action": `[{"id":"R1","if_all":[{"expr":"true"}]}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseRules(t, src)
			require.Error(t, err)
			assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
		})
	}
}

func TestParse_InvalidConditionSyntax(t *testing.T) {
	src := `
- id: R1
  if_all:
    - expr: "__import__('os').system('rm')"
  action: {type: other, target: t}
`
	_, err := parseRules(t, src)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
}

func TestParse_InvalidJustificationTemplate(t *testing.T) {
	src := `
- id: R1
  if_all: [{expr: "true"}]
  action: {type: other, target: t}
  justification_template: "broken ${{ value('x')"
`
	_, err := parseRules(t, src)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
}

func TestParse_PriorityOutOfRange(t *testing.T) {
	src := `
- id: R1
  if_all: [{expr: "true"}]
  action: {type: other, target: t}
  priority: 9
`
	_, err := parseRules(t, src)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
}

func TestParse_UnknownTopLevelField(t *testing.T) {
	src := `
- id: R1
  if_all: [{expr: "true"}]
  action: {type: other, target: t}
  surprise: 1
`
	_, err := parseRules(t, src)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
}

func TestParse_NotAList(t *testing.T) {
	_, err := parseRules(t, `{"id": "R1"}`)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
}

func TestParse_ImpactStringsAreNotSyntaxChecked(t *testing.T) {
	// A plain-text impact note is a literal by contract, not a syntax error.
	src := `
- id: R1
  if_all: [{expr: "true"}]
  action: {type: other, target: t}
  expected_impact:
    note: "manual review recommended"
`
	_, err := parseRules(t, src)
	require.NoError(t, err)
}

// --- File loading ---

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRules), 0o644))

	rs, err := Load(path, dsl.Limits{})
	require.NoError(t, err)
	assert.Equal(t, 2, rs.Len())
	assert.Equal(t, path, rs.Source)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), dsl.Limits{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeRuleDefinition, schema.CodeOf(err))
}
