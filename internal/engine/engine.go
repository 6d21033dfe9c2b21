package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/navsight/advisor/internal/dsl"
	"github.com/navsight/advisor/internal/facts"
	"github.com/navsight/advisor/internal/logging"
	"github.com/navsight/advisor/pkg/schema"
)

// Config holds per-engine settings. Telemetry is an explicit value threaded
// into the evaluation entry point; there is no process-wide toggle.
type Config struct {
	Limits dsl.Limits

	// Telemetry enables observer events and per-run logging. Off, the engine
	// is silent; contained failures are still contained, just unreported.
	Telemetry bool

	Observer Observer
	Logger   *slog.Logger
}

// Engine evaluates one immutable rule-set against fact snapshots. A loaded
// Engine may be shared across goroutines: evaluation reads the rule-set and
// snapshot only, and the expression cache is internally synchronized.
type Engine struct {
	rules    *schema.RuleSet
	cfg      Config
	compiler *dsl.Compiler
	logger   *slog.Logger
}

// New creates an Engine over a loaded rule-set.
func New(rules *schema.RuleSet, cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		rules:    rules,
		cfg:      cfg,
		compiler: dsl.NewCompiler(cfg.Limits),
		logger:   logger,
	}
}

// Rules returns the engine's rule-set.
func (e *Engine) Rules() *schema.RuleSet {
	return e.rules
}

// Evaluate runs every rule against one fact snapshot and returns the ordered
// action list. The result is a pure function of (rule-set, snapshot): two
// evaluations of the same pair yield identical ordered output.
//
// Per-rule failures (condition errors, render failures) are contained and
// surfaced via the observer; the only fatal conditions are a missing rule-set
// or snapshot, returned as a structured error with no partial output.
func (e *Engine) Evaluate(ctx context.Context, snapshot map[string]any) ([]schema.Action, error) {
	if e.rules == nil {
		return nil, schema.NewError(schema.ErrCodeNotFound, "no rule-set loaded")
	}
	if snapshot == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "fact snapshot is nil")
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	fctx := facts.NewContext(snapshot)

	if e.cfg.Telemetry {
		logging.LogWith(ctx, e.logger).Debug("evaluation run started",
			"rules", e.rules.Len(),
		)
	}

	var candidates []candidate
	for i := range e.rules.Rules {
		rule := &e.rules.Rules[i]
		rctx := logging.WithRuleID(ctx, rule.ID)

		if !e.match(rctx, rule, fctx) {
			continue
		}

		action, err := e.render(rule, fctx, len(candidates)+1)
		if err != nil {
			e.observe().ActionDropped(rctx, rule.ID, err)
			continue
		}
		key, err := e.renderDedupeKey(rule, fctx)
		if err != nil {
			e.observe().ActionDropped(rctx, rule.ID, err)
			continue
		}

		candidates = append(candidates, candidate{
			action:     action,
			ruleIndex:  i,
			inputIndex: len(candidates),
			dedupeKey:  key,
			maxPerType: rule.MaxPerType,
		})
	}

	actions := reduce(candidates)

	if e.cfg.Telemetry {
		logging.LogWith(ctx, e.logger).Info("evaluation run finished",
			"candidates", len(candidates),
			"actions", len(actions),
		)
	}
	return actions, nil
}

// observe returns the configured observer, honoring the telemetry switch.
func (e *Engine) observe() Observer {
	if !e.cfg.Telemetry || e.cfg.Observer == nil {
		return NopObserver{}
	}
	return e.cfg.Observer
}
