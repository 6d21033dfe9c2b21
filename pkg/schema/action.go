package schema

// Well-known action types. Rule files may use any string type; these cover the
// built-in paid-search rule packs.
const (
	ActionTightenMatchTypes = "tighten_match_types"
	ActionAddNegatives      = "add_negatives"
	ActionBudgetRebalance   = "budget_rebalance"
	ActionGeoExclude        = "geo_exclude"
	ActionCapPMax           = "cap_pmax"
	ActionCreativeRefresh   = "creative_refresh"
	ActionTrackingFix       = "tracking_fix"
	ActionOther             = "other"
)

// Action is a single machine-actionable recommendation emitted when a rule
// matches. Actions are immutable after rendering: the narrative collaborator
// must render text without altering or inventing any field.
type Action struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Target        string         `json:"target"`
	Params        map[string]any `json:"params,omitempty"`
	Justification string         `json:"justification"`
	// ExpectedImpact holds independently evaluated impact entries. Entries whose
	// expression resolved to an absent value are omitted, never emitted as null.
	ExpectedImpact map[string]any `json:"expected_impact,omitempty"`
	Priority       int            `json:"priority"`
	Confidence     float64        `json:"confidence"`
	SourceRuleID   string         `json:"source_rule_id"`
}
