package engine

import (
	"context"
	"log/slog"

	"github.com/navsight/advisor/internal/logging"
)

// Observer is the observability boundary for contained failures: condition
// errors and render failures never abort a run, they surface here. Implementors
// must not block; everything they receive is advisory.
type Observer interface {
	// ConditionError fires when one rule condition fails to evaluate. The rule
	// is treated as non-matching and the run continues.
	ConditionError(ctx context.Context, ruleID, expr string, err error)

	// ActionDropped fires when a matched rule's action fails to render. The
	// action is dropped and the rest of the batch is unaffected.
	ActionDropped(ctx context.Context, ruleID string, err error)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) ConditionError(context.Context, string, string, error) {}
func (NopObserver) ActionDropped(context.Context, string, error)          {}

// LogObserver reports events through slog with correlation IDs from the context.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o LogObserver) ConditionError(ctx context.Context, ruleID, expr string, err error) {
	logging.LogWith(ctx, o.logger()).Warn("condition failed, treating rule as non-match",
		"rule_id", ruleID,
		"expr", expr,
		"error", err,
	)
}

func (o LogObserver) ActionDropped(ctx context.Context, ruleID string, err error) {
	logging.LogWith(ctx, o.logger()).Warn("action render failed, dropping action",
		"rule_id", ruleID,
		"error", err,
	)
}
