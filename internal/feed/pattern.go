package feed

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/realmsync/internal/ir"
)

// Mode selects how a Pattern consumes changed component names.
type Mode string

const (
	// ModeBundle fires once every component of the set has entered.
	ModeBundle Mode = "bundle"
	// ModeExact requires one notification to change exactly the set.
	ModeExact Mode = "exact"
)

// Pattern is a named domain event shape over component names.
type Pattern struct {
	Name       string   `yaml:"name" json:"name"`
	Mode       Mode     `yaml:"mode" json:"mode"`
	Components []string `yaml:"components" json:"components"`
}

// Validate checks that the pattern is usable.
func (p Pattern) Validate() error {
	if p.Name == "" {
		return errors.New("pattern name is empty")
	}
	switch p.Mode {
	case ModeBundle, ModeExact:
	default:
		return fmt.Errorf("pattern %s: unknown mode %q", p.Name, p.Mode)
	}
	if len(p.Components) == 0 {
		return fmt.Errorf("pattern %s: no components", p.Name)
	}
	seen := make(map[string]bool, len(p.Components))
	for _, c := range p.Components {
		if c == "" {
			return fmt.Errorf("pattern %s: empty component name", p.Name)
		}
		if seen[c] {
			return fmt.Errorf("pattern %s: duplicate component %s", p.Name, c)
		}
		seen[c] = true
	}
	return nil
}

// MatchesExact reports whether changed is exactly the pattern's set,
// ignoring order and duplicates.
func (p Pattern) MatchesExact(changed []string) bool {
	want := set(p.Components)
	got := set(changed)
	if len(want) != len(got) {
		return false
	}
	for c := range got {
		if _, ok := want[c]; !ok {
			return false
		}
	}
	return true
}

// Change is one applied notification: the names it carried and, of those,
// the components that became present or absent in the canonical store.
type Change struct {
	Entity  ir.EntityID
	Changed []string
	Entered []string
	Exited  []string
}

type bundleKey struct {
	pattern int
	entity  ir.EntityID
}

// Classifier applies patterns to notifications. Bundle progress counts only
// entered components, is kept per (pattern, entity), and is safe for
// concurrent use.
type Classifier struct {
	patterns []Pattern

	mu      sync.Mutex
	pending map[bundleKey]map[string]struct{}
}

// NewClassifier validates the patterns and returns a classifier.
func NewClassifier(patterns ...Pattern) (*Classifier, error) {
	names := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if names[p.Name] {
			return nil, fmt.Errorf("duplicate pattern %s", p.Name)
		}
		names[p.Name] = true
	}
	return &Classifier{
		patterns: slices.Clone(patterns),
		pending:  make(map[bundleKey]map[string]struct{}),
	}, nil
}

// Patterns returns the configured patterns.
func (c *Classifier) Patterns() []Pattern {
	return slices.Clone(c.patterns)
}

// Classify records one applied notification and returns the names of the
// patterns it completes, in pattern order. A nil result means the update is
// not domain-relevant.
//
// A bundle fires when its last missing component enters, whether the
// components entered together or across notifications, and its progress
// then resets. Rewriting components that are already present never counts,
// so a bundle fires again only after its components left and came back.
func (c *Classifier) Classify(ch Change) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for i, p := range c.patterns {
		switch p.Mode {
		case ModeExact:
			if p.MatchesExact(ch.Changed) {
				out = append(out, p.Name)
			}
		case ModeBundle:
			if c.accumulate(bundleKey{pattern: i, entity: ch.Entity}, p, ch) {
				out = append(out, p.Name)
			}
		}
	}
	return out
}

// accumulate applies exits then entries to the bundle's progress and
// reports completion, resetting the progress when it completes.
// Caller holds mu.
func (c *Classifier) accumulate(key bundleKey, p Pattern, ch Change) bool {
	want := set(p.Components)
	seen := c.pending[key]
	for _, name := range ch.Exited {
		delete(seen, name)
	}
	for _, name := range ch.Entered {
		if _, ok := want[name]; !ok {
			continue
		}
		if seen == nil {
			seen = make(map[string]struct{}, len(want))
			c.pending[key] = seen
		}
		seen[name] = struct{}{}
	}
	if len(seen) == 0 {
		delete(c.pending, key)
		return false
	}
	if len(seen) < len(want) {
		return false
	}
	delete(c.pending, key)
	return true
}

// Pending returns the number of partially seen bundles.
func (c *Classifier) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func set(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
