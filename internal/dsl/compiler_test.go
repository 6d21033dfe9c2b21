package dsl

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navsight/advisor/internal/facts"
)

func TestCompiler_CachesParsedTrees(t *testing.T) {
	c := NewCompiler(Limits{})
	first, err := c.Compile("1 + 2")
	require.NoError(t, err)
	second, err := c.Compile("1 + 2")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCompiler_FailuresNotCached(t *testing.T) {
	c := NewCompiler(Limits{})
	_, err := c.Compile("1 +")
	require.Error(t, err)
	_, err = c.Compile("1 +")
	require.Error(t, err)
}

func TestCompiler_ConcurrentCompileAndEval(t *testing.T) {
	c := NewCompiler(Limits{})
	fctx := facts.NewContext(map[string]any{"n": 2.0})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := c.Eval("value('n') * 3", fctx)
				assert.NoError(t, err)
				assert.Equal(t, 6.0, v)
			}
		}()
	}
	wg.Wait()
}
