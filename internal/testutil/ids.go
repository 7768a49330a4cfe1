package testutil

import (
	"fmt"
	"sync"
)

// FixedIDs returns a preset list of ids in order.
//
// Panics when the list is exhausted so a test that issues more commands
// than it planned for fails loudly instead of reusing an id.
//
// Thread-safety: safe for concurrent use.
type FixedIDs struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDs creates a generator returning ids in order.
func NewFixedIDs(ids ...string) *FixedIDs {
	return &FixedIDs{ids: ids}
}

// Generate returns the next preset id.
func (g *FixedIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic(fmt.Sprintf("testutil.FixedIDs: exhausted after %d ids", len(g.ids)))
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Used returns how many ids have been handed out.
func (g *FixedIDs) Used() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.idx
}

// SequenceIDs generates prefix-1, prefix-2, ... without limit. Scenario
// runs use it so golden traces stay byte-identical across runs.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a sequence generator. An empty prefix becomes "op".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "op"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
