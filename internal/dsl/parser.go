package dsl

import (
	"github.com/navsight/advisor/pkg/schema"
)

// Limits bounds worst-case parse and evaluation cost. Expressions over the
// source-length or nesting limits are rejected with a LIMIT_ERROR before any
// evaluation is attempted.
type Limits struct {
	MaxExprLen int
	MaxDepth   int
}

// DefaultLimits are generous for human-authored rules and tight enough to
// block pathological rule content.
func DefaultLimits() Limits {
	return Limits{MaxExprLen: 2048, MaxDepth: 48}
}

func (l Limits) withDefaults() Limits {
	if l.MaxExprLen <= 0 {
		l.MaxExprLen = DefaultLimits().MaxExprLen
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultLimits().MaxDepth
	}
	return l
}

// funcSig is the arity contract of one allowed builtin.
type funcSig struct {
	minArgs int
	maxArgs int // -1 = variadic
}

// conditionFuncs is the closed builtin set reachable from rule conditions and
// impact expressions.
var conditionFuncs = map[string]funcSig{
	"min":   {minArgs: 1, maxArgs: -1},
	"max":   {minArgs: 1, maxArgs: -1},
	"value": {minArgs: 1, maxArgs: 2},
}

// templateFuncs additionally exposes the display formatters. Only templates
// get them; conditions have no business formatting text.
var templateFuncs = map[string]funcSig{
	"min":   {minArgs: 1, maxArgs: -1},
	"max":   {minArgs: 1, maxArgs: -1},
	"value": {minArgs: 1, maxArgs: 2},
	"pct":   {minArgs: 1, maxArgs: 1},
	"usd":   {minArgs: 1, maxArgs: 1},
}

// Parse parses a condition/impact expression under the default limits.
func Parse(src string) (Node, error) {
	return ParseWithLimits(src, DefaultLimits())
}

// ParseWithLimits parses a condition/impact expression.
func ParseWithLimits(src string, limits Limits) (Node, error) {
	return parse(src, limits, conditionFuncs)
}

// parseTemplateExpr parses an expression inside a ${{ ... }} template span,
// where the formatter builtins are also allowed.
func parseTemplateExpr(src string, limits Limits) (Node, error) {
	return parse(src, limits, templateFuncs)
}

func parse(src string, limits Limits, funcs map[string]funcSig) (Node, error) {
	limits = limits.withDefaults()
	if len(src) > limits.MaxExprLen {
		return nil, schema.NewErrorf(schema.ErrCodeLimit,
			"expression length %d exceeds limit %d", len(src), limits.MaxExprLen)
	}

	p := &parser{lex: newLexer(src), funcs: funcs, maxDepth: limits.MaxDepth}
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, schema.NewErrorf(schema.ErrCodeSyntax,
			"unexpected %s after expression", p.tok)
	}
	return node, nil
}

type parser struct {
	lex   *lexer
	tok   token
	funcs map[string]funcSig

	depth    int
	maxDepth int
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

// enter guards parse recursion, which also bounds the depth of any tree the
// parser can produce.
func (p *parser) enter() error {
	p.depth++
	if p.depth > p.maxDepth {
		return schema.NewErrorf(schema.ErrCodeLimit,
			"expression nesting exceeds depth limit %d", p.maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseOr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokOr {
		return left, nil
	}
	operands := []Node{left}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return &BoolOp{Op: BoolOr, Operands: operands}, nil
}

func (p *parser) parseAnd() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokAnd {
		return left, nil
	}
	operands := []Node{left}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		operands = append(operands, next)
	}
	return &BoolOp{Op: BoolAnd, Operands: operands}, nil
}

func (p *parser) parseNot() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if p.tok.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.parseComparison()
}

var compareKinds = map[tokenKind]CompareKind{
	tokEq: CmpEq,
	tokNe: CmpNe,
	tokLt: CmpLt,
	tokLe: CmpLe,
	tokGt: CmpGt,
	tokGe: CmpGe,
}

// parseComparison handles single and chained comparisons. A chain like
// `1 < x < 5` desugars to `1 < x and x < 5`; the middle operand may evaluate
// twice, which is harmless in a pure expression language.
func (p *parser) parseComparison() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	var chain []Node
	for {
		kind, ok := compareKinds[p.tok.kind]
		if !ok {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		chain = append(chain, &Compare{Op: kind, Left: left, Right: right})
		left = right
	}

	switch len(chain) {
	case 0:
		return left, nil
	case 1:
		return chain[0], nil
	default:
		return &BoolOp{Op: BoolAnd, Operands: chain}, nil
	}
}

func (p *parser) parseAdditive() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokPlus || p.tok.kind == tokMinus {
		op := OpAdd
		if p.tok.kind == tokMinus {
			op = OpSub
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOpKind
		switch p.tok.kind {
		case tokStar:
			op = OpMul
		case tokSlash:
			op = OpDiv
		case tokPercent:
			op = OpMod
		default:
			return left, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	if p.tok.kind == tokMinus {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold a negated numeric literal; otherwise lower to 0 - x so absent
		// propagation falls out of the BinOp rules.
		if lit, ok := operand.(*Literal); ok {
			if n, ok := lit.Value.(float64); ok {
				return &Literal{Value: -n}, nil
			}
		}
		return &BinOp{Op: OpSub, Left: &Literal{Value: float64(0)}, Right: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	switch p.tok.kind {
	case tokNumber:
		n := p.tok.num
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: n}, nil

	case tokString:
		s := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: s}, nil

	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, schema.NewErrorf(schema.ErrCodeSyntax,
				"expected ')', got %s", p.tok)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		return p.parseIdent()
	}

	return nil, schema.NewErrorf(schema.ErrCodeSyntax, "unexpected %s", p.tok)
}

func (p *parser) parseIdent() (Node, error) {
	name := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}

	// Keyword literals. Python-cased spellings are accepted because authors
	// migrating old rule packs keep writing them.
	switch name {
	case "true", "True":
		return &Literal{Value: true}, nil
	case "false", "False":
		return &Literal{Value: false}, nil
	case "none", "null", "None":
		return &Literal{Value: nil}, nil
	}

	if p.tok.kind != tokLParen {
		return nil, schema.NewErrorf(schema.ErrCodeSyntax,
			"name %q not allowed: only literals and builtin calls exist", name)
	}

	sig, ok := p.funcs[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeSyntax,
			"function %q not allowed", name)
	}

	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []Node
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.tok.kind != tokRParen {
		return nil, schema.NewErrorf(schema.ErrCodeSyntax,
			"expected ')' in call to %q, got %s", name, p.tok)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if len(args) < sig.minArgs || (sig.maxArgs != -1 && len(args) > sig.maxArgs) {
		return nil, schema.NewErrorf(schema.ErrCodeSyntax,
			"wrong argument count for %q: got %d", name, len(args))
	}

	// value() lowers to a Path node: the path must be a string literal so every
	// data access is statically visible in the parsed tree.
	if name == "value" {
		lit, ok := args[0].(*Literal)
		if !ok {
			return nil, schema.NewError(schema.ErrCodeSyntax,
				"value() requires a string literal path")
		}
		path, ok := lit.Value.(string)
		if !ok {
			return nil, schema.NewError(schema.ErrCodeSyntax,
				"value() requires a string literal path")
		}
		var def Node
		if len(args) == 2 {
			def = args[1]
		}
		return &Path{Path: path, Default: def}, nil
	}

	return &Call{Name: name, Args: args}, nil
}
