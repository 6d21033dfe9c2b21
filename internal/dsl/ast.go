package dsl

// The AST is a closed tagged-variant set: only the node kinds below can exist
// after a successful parse. There is no name lookup, attribute access, import,
// or call to anything outside the fixed builtin set: safety is structural,
// not a blocklist. The evaluator matches exhaustively over these kinds.

// Node is one expression tree node.
type Node interface {
	node()
}

// Literal is a constant: float64, string, bool, or nil (the null literal).
type Literal struct {
	Value any
}

// BoolOpKind selects and/or.
type BoolOpKind int

const (
	BoolAnd BoolOpKind = iota
	BoolOr
)

// BoolOp is an n-ary and/or chain, evaluated left to right with true
// short-circuiting: once the left side determines the result, the remaining
// operands are never evaluated.
type BoolOp struct {
	Op       BoolOpKind
	Operands []Node
}

// Not is logical negation through truthiness.
type Not struct {
	Operand Node
}

// CompareKind selects a comparison operator.
type CompareKind int

const (
	CmpEq CompareKind = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

// Compare is a single binary comparison. Chained comparisons desugar to an
// and-chain of these at parse time.
type Compare struct {
	Op          CompareKind
	Left, Right Node
}

// BinOpKind selects an arithmetic operator.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod
)

// BinOp is binary arithmetic. An absent operand makes the result absent.
type BinOp struct {
	Op          BinOpKind
	Left, Right Node
}

// Call invokes one of the fixed builtin functions by name. The parser rejects
// any name outside the allowed set, so no other callable is reachable.
type Call struct {
	Name string
	Args []Node
}

// Path accesses the fact snapshot. The parser lowers value("a.b"[, default])
// into this node; the path must be a string literal so every data access is
// statically visible in the tree.
type Path struct {
	Path    string
	Default Node // nil means default to the absent sentinel
}

func (*Literal) node() {}
func (*BoolOp) node()  {}
func (*Not) node()     {}
func (*Compare) node() {}
func (*BinOp) node()   {}
func (*Call) node()    {}
func (*Path) node()    {}
