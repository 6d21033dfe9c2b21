package facts

import (
	"fmt"
	"strconv"
	"strings"
)

// Paths are validated against a restricted character set before any traversal
// so hostile rule content cannot smuggle structure into a segment name.
const pathAllowed = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_.-[]:= "

type opKind int

const (
	opIndex opKind = iota
	opSlice
	opFilter
)

// bracketOp is one [...] suffix on a path segment.
type bracketOp struct {
	kind opKind

	index int

	sliceFrom    int
	sliceTo      int
	hasSliceFrom bool
	hasSliceTo   bool

	filterField string
	filterValue any
}

// segment is one dot-delimited hop: a map key plus zero or more bracket ops.
type segment struct {
	name string
	ops  []bracketOp
}

// parsePath splits a dotted path into segments, validating the character set
// and bracket structure up front.
func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	for _, r := range path {
		if !strings.ContainsRune(pathAllowed, r) {
			return nil, fmt.Errorf("path %q: character %q not allowed", path, r)
		}
	}

	// Split on dots outside brackets.
	var parts []string
	depth, start := 0, 0
	for i, r := range path {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("path %q: unbalanced ']'", path)
			}
		case '.':
			if depth == 0 {
				parts = append(parts, path[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("path %q: unclosed '['", path)
	}
	parts = append(parts, path[start:])

	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func parseSegment(part string) (segment, error) {
	open := strings.IndexByte(part, '[')
	if open == -1 {
		if part == "" {
			return segment{}, fmt.Errorf("empty segment")
		}
		return segment{name: part}, nil
	}

	seg := segment{name: part[:open]}
	rest := part[open:]
	for rest != "" {
		if rest[0] != '[' {
			return segment{}, fmt.Errorf("malformed segment %q", part)
		}
		close := strings.IndexByte(rest, ']')
		if close == -1 {
			return segment{}, fmt.Errorf("segment %q: unclosed '['", part)
		}
		op, err := parseBracketOp(rest[1:close])
		if err != nil {
			return segment{}, fmt.Errorf("segment %q: %w", part, err)
		}
		seg.ops = append(seg.ops, op)
		rest = rest[close+1:]
	}
	// A bare bracket chain ("[0]") with no leading name applies to the current
	// value. That only makes sense after a prior segment, which traversal handles.
	return seg, nil
}

func parseBracketOp(body string) (bracketOp, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return bracketOp{}, fmt.Errorf("empty bracket op")
	}

	if eq := strings.IndexByte(body, '='); eq != -1 {
		field := strings.TrimSpace(body[:eq])
		if field == "" {
			return bracketOp{}, fmt.Errorf("filter missing field name")
		}
		return bracketOp{
			kind:        opFilter,
			filterField: field,
			filterValue: parseFilterLiteral(strings.TrimSpace(body[eq+1:])),
		}, nil
	}

	if colon := strings.IndexByte(body, ':'); colon != -1 {
		op := bracketOp{kind: opSlice}
		if from := strings.TrimSpace(body[:colon]); from != "" {
			n, err := strconv.Atoi(from)
			if err != nil {
				return bracketOp{}, fmt.Errorf("bad slice bound %q", from)
			}
			op.sliceFrom, op.hasSliceFrom = n, true
		}
		if to := strings.TrimSpace(body[colon+1:]); to != "" {
			n, err := strconv.Atoi(to)
			if err != nil {
				return bracketOp{}, fmt.Errorf("bad slice bound %q", to)
			}
			op.sliceTo, op.hasSliceTo = n, true
		}
		return op, nil
	}

	if n, err := strconv.Atoi(body); err == nil {
		return bracketOp{kind: opIndex, index: n}, nil
	}
	return bracketOp{}, fmt.Errorf("bad bracket op %q", body)
}

// parseFilterLiteral interprets the right-hand side of a filter: bool, number,
// or bare string. Filters compare by literal equality only.
func parseFilterLiteral(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}

// apply resolves one segment against the current value. Any miss returns Absent.
func (s segment) apply(cur any) any {
	if s.name != "" {
		m, ok := cur.(map[string]any)
		if !ok {
			return Absent
		}
		v, ok := m[s.name]
		if !ok || v == nil {
			return Absent
		}
		cur = v
	}
	for _, op := range s.ops {
		cur = op.apply(cur)
		if IsAbsent(cur) {
			return Absent
		}
	}
	return cur
}

func (op bracketOp) apply(cur any) any {
	list, ok := cur.([]any)
	if !ok {
		return Absent
	}

	switch op.kind {
	case opIndex:
		i := op.index
		if i < 0 {
			i += len(list)
		}
		if i < 0 || i >= len(list) {
			return Absent
		}
		if list[i] == nil {
			return Absent
		}
		return list[i]

	case opSlice:
		from, to := 0, len(list)
		if op.hasSliceFrom {
			from = clampBound(op.sliceFrom, len(list))
		}
		if op.hasSliceTo {
			to = clampBound(op.sliceTo, len(list))
		}
		if from > to {
			return []any{}
		}
		return list[from:to]

	case opFilter:
		out := make([]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if literalEqual(m[op.filterField], op.filterValue) {
				out = append(out, item)
			}
		}
		return out
	}
	return Absent
}

func clampBound(i, n int) int {
	if i < 0 {
		i += n
	}
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// literalEqual compares a snapshot value to a filter literal, tolerating the
// numeric type spread JSON and YAML decoders produce.
func literalEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
