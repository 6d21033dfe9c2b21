package dsl

import (
	"strings"

	"github.com/navsight/advisor/internal/facts"
	"github.com/navsight/advisor/pkg/schema"
)

// Templates are plain text with ${{ ... }} expression spans. Spans run in the
// same sandboxed evaluator as rule conditions, extended only with the display
// formatters (pct, usd). No environment, filesystem, or host-function access
// is reachable from a template.

const (
	spanOpen  = "${{"
	spanClose = "}}"
)

// RenderTemplate substitutes every ${{ ... }} span in tmpl and returns the
// resulting text. An absent span value renders as the empty string.
func RenderTemplate(tmpl string, fctx *facts.Context, limits Limits) (string, error) {
	var out strings.Builder
	out.Grow(len(tmpl))

	rest := tmpl
	for {
		idx := strings.Index(rest, spanOpen)
		if idx == -1 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:idx])

		v, tail, err := evalSpan(rest[idx:], fctx, limits)
		if err != nil {
			return "", err
		}
		out.WriteString(FormatValue(v))
		rest = tail
	}
}

// RenderParam renders a parameter value. A string that is exactly one
// ${{ ... }} span keeps the evaluated value's native type (numbers stay
// numbers); anything else renders as text like RenderTemplate. The absent
// sentinel is returned as-is so callers can omit the parameter.
func RenderParam(s string, fctx *facts.Context, limits Limits) (any, error) {
	if whole, ok := wholeSpan(s); ok {
		v, _, err := evalSpan(whole, fctx, limits)
		return v, err
	}
	return RenderTemplate(s, fctx, limits)
}

// ValidateTemplate parses every span without evaluating, for eager load-time
// checks. Malformed span structure or expression syntax fails here.
func ValidateTemplate(tmpl string, limits Limits) error {
	rest := tmpl
	for {
		idx := strings.Index(rest, spanOpen)
		if idx == -1 {
			return nil
		}
		expr, tail, err := cutSpan(rest[idx:])
		if err != nil {
			return err
		}
		if _, err := parseTemplateExpr(expr, limits); err != nil {
			return err
		}
		rest = tail
	}
}

// wholeSpan reports whether s is exactly one ${{ ... }} span.
func wholeSpan(s string) (string, bool) {
	if !strings.HasPrefix(s, spanOpen) {
		return "", false
	}
	end := strings.Index(s, spanClose)
	if end == -1 || end+len(spanClose) != len(s) {
		return "", false
	}
	return s, true
}

// cutSpan extracts the expression of the span at the start of s and returns
// the remaining text after it.
func cutSpan(s string) (expr, tail string, err error) {
	inner := s[len(spanOpen):]
	end := strings.Index(inner, spanClose)
	if end == -1 {
		return "", "", schema.NewError(schema.ErrCodeActionRender,
			"unclosed ${{ in template")
	}
	expr = strings.TrimSpace(inner[:end])
	if expr == "" {
		return "", "", schema.NewError(schema.ErrCodeActionRender,
			"empty template span: ${{ }}")
	}
	// No nested ${{ inside a span.
	if strings.Contains(expr, spanOpen) {
		return "", "", schema.NewError(schema.ErrCodeActionRender,
			"nested ${{ not allowed inside a template span")
	}
	return expr, inner[end+len(spanClose):], nil
}

func evalSpan(s string, fctx *facts.Context, limits Limits) (any, string, error) {
	expr, tail, err := cutSpan(s)
	if err != nil {
		return nil, "", err
	}
	node, err := parseTemplateExpr(expr, limits)
	if err != nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeActionRender,
			"template span %q: %s", expr, err.Error()).WithCause(err)
	}
	v, err := Eval(node, fctx)
	if err != nil {
		return nil, "", schema.NewErrorf(schema.ErrCodeActionRender,
			"template span %q: %s", expr, err.Error()).WithCause(err)
	}
	return v, tail, nil
}
