package engine

import (
	"context"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/internal/facts"
	"github.com/navsight/advisor/pkg/schema"
)

// match evaluates a rule's conjunctive condition list in declaration order,
// stopping at the first false. An evaluation error is a non-match, reported
// through the observer; it never aborts the run. An empty condition list is
// vacuously true: a rule with no conditions always matches and emits its
// action unconditionally.
func (e *Engine) match(ctx context.Context, rule *schema.RuleDefinition, fctx *facts.Context) bool {
	for _, cond := range rule.IfAll {
		v, err := e.compiler.Eval(cond.Expr, fctx)
		if err != nil {
			e.observe().ConditionError(ctx, rule.ID, cond.Expr, err)
			return false
		}
		if !dsl.Truthy(v) {
			return false
		}
	}
	return true
}
