package dsl

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/navsight/advisor/internal/facts"
	"github.com/navsight/advisor/pkg/schema"
)

// Eval evaluates a parsed expression against a fact snapshot. Evaluation is
// pure: no I/O, no clock, no mutation of the snapshot, so identical inputs
// always produce identical results.
//
// Absence semantics (see facts.AbsentValue): absent propagates through
// arithmetic and min/max, orders false, equals only itself, and coerces to
// false in boolean context.
func Eval(node Node, fctx *facts.Context) (any, error) {
	switch n := node.(type) {
	case *Literal:
		if n.Value == nil {
			return facts.Absent, nil
		}
		return n.Value, nil

	case *BoolOp:
		return evalBoolOp(n, fctx)

	case *Not:
		v, err := Eval(n.Operand, fctx)
		if err != nil {
			return nil, err
		}
		return !Truthy(v), nil

	case *Compare:
		return evalCompare(n, fctx)

	case *BinOp:
		return evalBinOp(n, fctx)

	case *Call:
		return evalCall(n, fctx)

	case *Path:
		v := fctx.Resolve(n.Path)
		if facts.IsAbsent(v) && n.Default != nil {
			return Eval(n.Default, fctx)
		}
		return v, nil
	}

	// Unreachable for trees built by the parser; the node set is closed.
	return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
		"unknown node type %T", node)
}

// evalBoolOp short-circuits left to right: once the left side determines the
// result, remaining operands are never evaluated, so a failing right operand
// never executes. The result is always a bool, never an operand value.
func evalBoolOp(n *BoolOp, fctx *facts.Context) (any, error) {
	for _, operand := range n.Operands {
		v, err := Eval(operand, fctx)
		if err != nil {
			return nil, err
		}
		t := Truthy(v)
		if n.Op == BoolAnd && !t {
			return false, nil
		}
		if n.Op == BoolOr && t {
			return true, nil
		}
	}
	return n.Op == BoolAnd, nil
}

func evalCompare(n *Compare, fctx *facts.Context) (any, error) {
	left, err := Eval(n.Left, fctx)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, fctx)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case CmpEq:
		return valueEqual(left, right), nil
	case CmpNe:
		return !valueEqual(left, right), nil
	}

	// Ordering: absent on either side is false, never an error.
	if facts.IsAbsent(left) || facts.IsAbsent(right) {
		return false, nil
	}

	cmp, err := orderValues(left, right)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case CmpLt:
		return cmp < 0, nil
	case CmpLe:
		return cmp <= 0, nil
	case CmpGt:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func evalBinOp(n *BinOp, fctx *facts.Context) (any, error) {
	left, err := Eval(n.Left, fctx)
	if err != nil {
		return nil, err
	}
	right, err := Eval(n.Right, fctx)
	if err != nil {
		return nil, err
	}

	// Arithmetic with an absent operand yields absent, never an error.
	if facts.IsAbsent(left) || facts.IsAbsent(right) {
		return facts.Absent, nil
	}

	if n.Op == OpAdd {
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
	}

	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if !lok || !rok {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"arithmetic needs numbers, got %s and %s", typeName(left), typeName(right))
	}

	switch n.Op {
	case OpAdd:
		return lf + rf, nil
	case OpSub:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	case OpDiv:
		if rf == 0 {
			return nil, schema.NewError(schema.ErrCodeEvaluation, "division by zero")
		}
		return lf / rf, nil
	default:
		if rf == 0 {
			return nil, schema.NewError(schema.ErrCodeEvaluation, "modulo by zero")
		}
		// Floored modulo: the result takes the divisor's sign, so
		// (0 - 7) % 3 is 2, not -1.
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	}
}

func evalCall(n *Call, fctx *facts.Context) (any, error) {
	args := make([]any, len(n.Args))
	for i, arg := range n.Args {
		v, err := Eval(arg, fctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch n.Name {
	case "min", "max":
		return evalMinMax(n.Name, args)
	case "pct":
		return formatPct(args[0]), nil
	case "usd":
		return formatUSD(args[0]), nil
	}

	// Unreachable: the parser only admits the names above ("value" lowers to
	// a Path node before evaluation).
	return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
		"unknown function %q", n.Name)
}

// evalMinMax propagates absent like arithmetic: a missing operand means the
// extremum is unknown, not silently skipped.
func evalMinMax(name string, args []any) (any, error) {
	best := math.NaN()
	for _, a := range args {
		if facts.IsAbsent(a) {
			return facts.Absent, nil
		}
		f, ok := asNumber(a)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
				"%s() needs numbers, got %s", name, typeName(a))
		}
		switch {
		case math.IsNaN(best):
			best = f
		case name == "min" && f < best:
			best = f
		case name == "max" && f > best:
			best = f
		}
	}
	return best, nil
}

// Truthy reports the boolean value of v: false for absent, false/zero/empty
// values, true otherwise.
func Truthy(v any) bool {
	if facts.IsAbsent(v) {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := asNumber(v); ok {
		return f != 0
	}
	return true
}

// valueEqual implements DSL equality: absent equals only absent, numbers
// compare across decoder-produced types, everything else by deep equality.
func valueEqual(a, b any) bool {
	aAbs, bAbs := facts.IsAbsent(a), facts.IsAbsent(b)
	if aAbs || bAbs {
		return aAbs && bAbs
	}
	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)
		return ok && fa == fb
	}
	if _, ok := asNumber(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// orderValues compares two non-absent values: both numbers or both strings.
func orderValues(a, b any) (int, error) {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	return 0, schema.NewErrorf(schema.ErrCodeEvaluation,
		"cannot order %s against %s", typeName(a), typeName(b))
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func typeName(v any) string {
	if facts.IsAbsent(v) {
		return "absent"
	}
	return fmt.Sprintf("%T", v)
}

// formatPct renders a 0..1 rate as a whole percentage ("0.52" -> "52%").
// Ties round to even. Non-numeric input renders "n/a" rather than failing a
// whole justification.
func formatPct(v any) string {
	f, ok := asNumber(v)
	if !ok {
		return "n/a"
	}
	return strconv.FormatFloat(math.RoundToEven(f*100), 'f', -1, 64) + "%"
}

// formatUSD renders a dollar amount with thousands separators ("1234.6" ->
// "$1,235"). Ties round to even; a negative amount renders as "$-1,234".
// Non-numeric input renders "n/a".
func formatUSD(v any) string {
	f, ok := asNumber(v)
	if !ok {
		return "n/a"
	}
	neg := f < 0
	s := strconv.FormatFloat(math.RoundToEven(math.Abs(f)), 'f', 0, 64)
	var b strings.Builder
	b.WriteByte('$')
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(s[:lead])
	for i := lead; i < len(s); i += 3 {
		b.WriteByte(',')
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatValue renders an evaluated value for template output. Floats drop
// trailing zeros so "4.30" reads as "4.3"; absent renders empty.
func FormatValue(v any) string {
	if facts.IsAbsent(v) {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	if f, ok := asNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", v)
}
