package schema

// Priority bounds for rules and actions. Lower number = more urgent.
const (
	PriorityMin     = 1
	PriorityMax     = 5
	PriorityDefault = 3
)

// DefaultConfidence is applied when a rule does not declare one.
const DefaultConfidence = 0.9

// Condition is a single boolean expression inside a rule's if_all block.
type Condition struct {
	Expr string `json:"expr" yaml:"expr"`
}

// ActionTemplate describes the action a rule emits when all conditions hold.
// String param values may embed ${{ ... }} expression spans; they are rendered
// against the fact snapshot at evaluation time.
type ActionTemplate struct {
	Type   string         `json:"type" yaml:"type"`
	Target string         `json:"target" yaml:"target"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// RuleDefinition is one entry of a rule file.
type RuleDefinition struct {
	ID          string      `json:"id" yaml:"id"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	IfAll       []Condition `json:"if_all" yaml:"if_all"`

	Action ActionTemplate `json:"action" yaml:"action"`

	// JustificationTemplate is rendered with ${{ ... }} substitution. When empty,
	// Description is used verbatim.
	JustificationTemplate string `json:"justification_template,omitempty" yaml:"justification_template,omitempty"`

	// ExpectedImpact entries may be literals, expression strings, or nested maps
	// of either. Each entry evaluates independently.
	ExpectedImpact map[string]any `json:"expected_impact,omitempty" yaml:"expected_impact,omitempty"`

	Priority   int     `json:"priority,omitempty" yaml:"priority,omitempty"`
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// DedupeKey is a template identifying semantically equivalent actions.
	// Actions with colliding rendered keys merge; rules without a key never merge.
	DedupeKey string `json:"dedupe_key,omitempty" yaml:"dedupe_key,omitempty"`

	// MaxPerType caps how many actions of this rule's action type survive
	// resolution. Zero means uncapped.
	MaxPerType int `json:"max_per_type,omitempty" yaml:"max_per_type,omitempty"`
}

// RuleSet is an ordered, immutable collection of rules. Declaration order is
// load order and is the tie-break for dedupe and final ordering.
type RuleSet struct {
	Source string
	Rules  []RuleDefinition

	index map[string]int
}

// NewRuleSet builds a RuleSet over validated rules. Callers must have checked
// ID uniqueness already; the loader does.
func NewRuleSet(source string, rules []RuleDefinition) *RuleSet {
	idx := make(map[string]int, len(rules))
	for i, r := range rules {
		idx[r.ID] = i
	}
	return &RuleSet{Source: source, Rules: rules, index: idx}
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.Rules)
}

// IndexOf returns the declaration position of a rule ID, or -1 when unknown.
func (rs *RuleSet) IndexOf(id string) int {
	if i, ok := rs.index[id]; ok {
		return i
	}
	return -1
}
