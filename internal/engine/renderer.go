package engine

import (
	"fmt"
	"strings"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/internal/facts"
	"github.com/navsight/advisor/pkg/schema"
)

// render produces an Action from a matched rule. The ordinal is the action's
// 1-based position among this run's matches, making IDs deterministic for a
// given (rule-set, snapshot) pair. Any failure returns an ACTION_RENDER_ERROR
// and the action is dropped without touching the rest of the batch.
func (e *Engine) render(rule *schema.RuleDefinition, fctx *facts.Context, ordinal int) (schema.Action, error) {
	action := schema.Action{
		ID:           fmt.Sprintf("%s_ACT_%d", rule.ID, ordinal),
		Type:         rule.Action.Type,
		Target:       rule.Action.Target,
		Priority:     rule.Priority,
		Confidence:   rule.Confidence,
		SourceRuleID: rule.ID,
	}

	just, err := e.renderJustification(rule, fctx)
	if err != nil {
		return schema.Action{}, err
	}
	action.Justification = just

	if len(rule.Action.Params) > 0 {
		params, err := e.renderParams(rule.Action.Params, fctx)
		if err != nil {
			return schema.Action{}, asRenderError(err, rule.ID)
		}
		action.Params = params
	}

	if len(rule.ExpectedImpact) > 0 {
		impact, err := e.renderImpact(rule.ExpectedImpact, fctx)
		if err != nil {
			return schema.Action{}, asRenderError(err, rule.ID)
		}
		if len(impact) > 0 {
			action.ExpectedImpact = impact
		}
	}

	return action, nil
}

func (e *Engine) renderJustification(rule *schema.RuleDefinition, fctx *facts.Context) (string, error) {
	if rule.JustificationTemplate == "" {
		return rule.Description, nil
	}
	text, err := dsl.RenderTemplate(rule.JustificationTemplate, fctx, e.cfg.Limits)
	if err != nil {
		return "", asRenderError(err, rule.ID)
	}
	return strings.TrimSpace(text), nil
}

// renderDedupeKey renders the rule's dedupe key, or "" when the rule has none
// and must never merge. A declared key that renders empty (its spans all came
// back absent) is a render failure: the action's identity is unknown and
// neither merging it nor letting it through unmerged can be right.
func (e *Engine) renderDedupeKey(rule *schema.RuleDefinition, fctx *facts.Context) (string, error) {
	if rule.DedupeKey == "" {
		return "", nil
	}
	key, err := dsl.RenderTemplate(rule.DedupeKey, fctx, e.cfg.Limits)
	if err != nil {
		return "", asRenderError(err, rule.ID)
	}
	if key == "" {
		return "", schema.NewError(schema.ErrCodeActionRender,
			"dedupe key rendered empty").WithRule(rule.ID)
	}
	return key, nil
}

// renderParams deep-copies the param map, substituting template spans in
// string values. A string that is exactly one span keeps its evaluated type;
// a whole-span absent result removes the parameter.
func (e *Engine) renderParams(params map[string]any, fctx *facts.Context) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		rendered, err := e.renderParamValue(v, fctx)
		if err != nil {
			return nil, err
		}
		if facts.IsAbsent(rendered) {
			continue
		}
		out[k] = rendered
	}
	return out, nil
}

func (e *Engine) renderParamValue(v any, fctx *facts.Context) (any, error) {
	switch t := v.(type) {
	case string:
		return dsl.RenderParam(t, fctx, e.cfg.Limits)
	case map[string]any:
		return e.renderParams(t, fctx)
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			rendered, err := e.renderParamValue(item, fctx)
			if err != nil {
				return nil, err
			}
			if facts.IsAbsent(rendered) {
				continue
			}
			out = append(out, rendered)
		}
		return out, nil
	default:
		return v, nil
	}
}

// renderImpact evaluates expected_impact entries independently. A string
// entry that parses as an expression is evaluated; a string that does not
// parse is a literal by contract (plain-text impact notes are common in rule
// packs). An entry evaluating to absent is omitted rather than emitted as
// null, avoiding downstream ambiguity.
func (e *Engine) renderImpact(impact map[string]any, fctx *facts.Context) (map[string]any, error) {
	out := make(map[string]any, len(impact))
	for k, v := range impact {
		rendered, ok, err := e.renderImpactValue(v, fctx)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = rendered
		}
	}
	return out, nil
}

func (e *Engine) renderImpactValue(v any, fctx *facts.Context) (any, bool, error) {
	switch t := v.(type) {
	case string:
		node, err := e.compiler.Compile(t)
		if err != nil {
			return t, true, nil // literal string, not an expression
		}
		result, err := dsl.Eval(node, fctx)
		if err != nil {
			return nil, false, err
		}
		if facts.IsAbsent(result) {
			return nil, false, nil
		}
		return result, true, nil

	case map[string]any:
		nested, err := e.renderImpact(t, fctx)
		if err != nil {
			return nil, false, err
		}
		if len(nested) == 0 {
			return nil, false, nil
		}
		return nested, true, nil

	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			rendered, ok, err := e.renderImpactValue(item, fctx)
			if err != nil {
				return nil, false, err
			}
			if ok {
				out = append(out, rendered)
			}
		}
		return out, true, nil

	case nil:
		return nil, false, nil

	default:
		return v, true, nil
	}
}

// asRenderError wraps any failure from the render path under the render code
// so callers see a single failure kind for this stage.
func asRenderError(err error, ruleID string) error {
	if ae, ok := err.(*schema.AdvisorError); ok {
		if ae.Code == schema.ErrCodeActionRender {
			return ae.WithRule(ruleID)
		}
		return schema.NewError(schema.ErrCodeActionRender, ae.Message).
			WithRule(ruleID).WithCause(ae)
	}
	return schema.NewError(schema.ErrCodeActionRender, err.Error()).
		WithRule(ruleID).WithCause(err)
}
