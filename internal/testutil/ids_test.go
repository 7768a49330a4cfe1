package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedIDs_InOrder(t *testing.T) {
	g := NewFixedIDs("a", "b")

	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Equal(t, 2, g.Used())
}

func TestFixedIDs_PanicsWhenExhausted(t *testing.T) {
	g := NewFixedIDs("only")
	g.Generate()

	assert.PanicsWithValue(t, "testutil.FixedIDs: exhausted after 1 ids", func() {
		g.Generate()
	})
}

func TestSequenceIDs(t *testing.T) {
	g := NewSequenceIDs("")
	assert.Equal(t, "op-1", g.Generate())
	assert.Equal(t, "op-2", g.Generate())

	g2 := NewSequenceIDs("cmd")
	assert.Equal(t, "cmd-1", g2.Generate())
}

func TestSequenceIDs_UniqueUnderConcurrency(t *testing.T) {
	g := NewSequenceIDs("x")
	const workers, each = 20, 50

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				id := g.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*each)
}
