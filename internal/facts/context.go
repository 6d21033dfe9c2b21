package facts

// AbsentValue is the sentinel for data that could not be resolved: a missing
// path, an out-of-range index, or an explicit null in the snapshot. It is a
// value, not an error; rule expressions keep evaluating when data is missing.
//
// Semantics (load-bearing for every rule author):
//   - arithmetic with an absent operand yields absent
//   - ordering comparisons with an absent operand yield false
//   - equality is true only when both sides are absent
//   - absent coerces to false in boolean context
type AbsentValue struct{}

// Absent is the shared sentinel instance.
var Absent = AbsentValue{}

// IsAbsent reports whether v is the absent sentinel or a raw nil. Explicit
// nulls in the snapshot and unresolved paths are deliberately indistinguishable
// so rule authors see exactly one missing-data behavior.
func IsAbsent(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(AbsentValue)
	return ok
}

// Context is one immutable fact snapshot. It is read-only for the duration of
// an evaluation run; independent runs over different contexts may execute
// concurrently without coordination.
type Context struct {
	root map[string]any
}

// NewContext wraps a decoded fact snapshot. The caller must not mutate root
// after handing it over.
func NewContext(root map[string]any) *Context {
	return &Context{root: root}
}

// Resolve traverses a dotted path and returns the value, or Absent when any
// hop is missing. See ResolveDefault for the path grammar.
func (c *Context) Resolve(path string) any {
	return c.ResolveDefault(path, Absent)
}

// ResolveDefault traverses a dotted path and returns def when resolution fails
// at any point. Never returns an error: missing data is a value, not a fault.
//
// Path grammar, per dot-separated segment:
//
//	segment       = name *( "[" op "]" )
//	op            = index | slice | filter
//	index         = ["-"] digits            e.g. findings[0], findings[-1]
//	slice         = [int] ":" [int]          e.g. terms[:25], terms[3:]
//	filter        = name "=" literal         e.g. findings[category=keywords]
//
// A filter selects the entries of a sequence of mappings whose named field
// equals the literal (string, number, or bool). No arbitrary predicates.
func (c *Context) ResolveDefault(path string, def any) any {
	segs, err := parsePath(path)
	if err != nil {
		return def
	}

	var cur any = c.root
	for _, seg := range segs {
		cur = seg.apply(cur)
		if IsAbsent(cur) {
			return def
		}
	}
	if cur == nil {
		return def
	}
	return cur
}
