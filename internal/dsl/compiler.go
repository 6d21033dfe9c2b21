package dsl

import (
	"sync"

	"github.com/navsight/advisor/internal/facts"
)

// Compiler parses expressions with a shared cache of compiled trees.
// Thread-safe: parsed trees are immutable and reused across goroutines.
// Caching only affects cost, never results.
type Compiler struct {
	limits Limits

	mu    sync.RWMutex
	cache map[string]Node
}

// NewCompiler creates a compiler for condition/impact expressions.
func NewCompiler(limits Limits) *Compiler {
	return &Compiler{
		limits: limits.withDefaults(),
		cache:  make(map[string]Node),
	}
}

// Compile returns a cached tree or parses and caches a new one. Parse failures
// are not cached; a malformed expression fails identically every time anyway.
func (c *Compiler) Compile(src string) (Node, error) {
	c.mu.RLock()
	if node, ok := c.cache[src]; ok {
		c.mu.RUnlock()
		return node, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if node, ok := c.cache[src]; ok {
		return node, nil
	}

	node, err := ParseWithLimits(src, c.limits)
	if err != nil {
		return nil, err
	}
	c.cache[src] = node
	return node, nil
}

// Eval compiles and evaluates a condition expression in one call.
func (c *Compiler) Eval(src string, fctx *facts.Context) (any, error) {
	node, err := c.Compile(src)
	if err != nil {
		return nil, err
	}
	return Eval(node, fctx)
}

// Limits returns the guard configuration this compiler enforces.
func (c *Compiler) Limits() Limits {
	return c.limits
}
