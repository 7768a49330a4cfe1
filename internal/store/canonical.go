package store

import (
	"slices"

	"github.com/roach88/realmsync/internal/ir"
)

// CanonicalView reads canonical values only, ignoring overrides. Command
// implementations use it to compute ledger outcomes without counting their
// own predictions.
type CanonicalView struct {
	s *Store
}

// Canonical returns a Reader over canonical state.
func (s *Store) Canonical() CanonicalView {
	return CanonicalView{s: s}
}

// Read returns the canonical value or nil.
func (v CanonicalView) Read(entity ir.EntityID, component string) ir.IRObject {
	return v.s.ReadCanonical(entity, component)
}

// Entities returns, in sorted order, every entity holding the component
// canonically.
func (v CanonicalView) Entities(component string) []ir.EntityID {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]ir.EntityID, 0, len(v.s.canonical[component]))
	for e := range v.s.canonical[component] {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// Find returns, in sorted order, every entity whose canonical value
// contains subset.
func (v CanonicalView) Find(component string, subset ir.IRObject) []ir.EntityID {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	var out []ir.EntityID
	for e, value := range v.s.canonical[component] {
		if value.Contains(subset) {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}
