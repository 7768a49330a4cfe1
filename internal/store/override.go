package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/realmsync/internal/ir"
)

// ErrEmptyOverrideID is returned by AddOverride for an empty id.
var ErrEmptyOverrideID = errors.New("override id must not be empty")

// patch is one entry of a slot's override stack.
// A nil value predicts that the component is absent.
type patch struct {
	id    string
	value ir.IRObject
}

// AddOverride pushes a speculative patch for (entity, component) under the
// given id. The patch's fields are merged onto the canonical value; a nil
// value marks the slot absent in the composed view. Adding a second patch
// under the same id for the same slot replaces the earlier one and moves it
// to the top of the stack.
func (s *Store) AddOverride(id string, entity ir.EntityID, component string, value ir.IRObject) error {
	if id == "" {
		return ErrEmptyOverrideID
	}
	if err := s.validate(component, value); err != nil {
		return fmt.Errorf("override %s on %s/%s: %w", id, entity, component, err)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	sl := slot{entity: entity, component: component}

	s.mu.Lock()
	prev := s.composedLocked(sl)
	stack := s.overrides[sl]
	replaced := false
	stack = slices.DeleteFunc(stack, func(p patch) bool {
		if p.id == id {
			replaced = true
			return true
		}
		return false
	})
	s.overrides[sl] = append(stack, patch{id: id, value: value.Clone()})
	if !replaced {
		s.byID[id] = append(s.byID[id], sl)
	}
	next := s.composedLocked(sl)
	s.mu.Unlock()

	s.logger.Debug("override added",
		"override_id", id,
		"entity_id", entity,
		"component", component)

	s.emitChange(sl, prev, next, id)
	return nil
}

// RemoveOverride pops every patch carrying the id, from every slot, and
// emits an event for each slot whose composed value changed as a result.
// The exposed value is the next override down or the canonical value as it
// stands now. Returns the number of patches removed; unknown ids are a no-op.
func (s *Store) RemoveOverride(id string) int {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	slots := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()

	removed := 0
	for _, sl := range slots {
		s.mu.Lock()
		prev := s.composedLocked(sl)
		before := len(s.overrides[sl])
		stack := slices.DeleteFunc(s.overrides[sl], func(p patch) bool {
			return p.id == id
		})
		removed += before - len(stack)
		if len(stack) == 0 {
			delete(s.overrides, sl)
		} else {
			s.overrides[sl] = stack
		}
		next := s.composedLocked(sl)
		s.mu.Unlock()

		s.emitChange(sl, prev, next, id)
	}

	if removed > 0 {
		s.logger.Debug("override removed", "override_id", id, "patches", removed)
	}
	return removed
}

// HasOverrides reports whether any patch is stacked on the slot.
func (s *Store) HasOverrides(entity ir.EntityID, component string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.overrides[slot{entity: entity, component: component}]) > 0
}

// OverrideIDs returns the ids with at least one live patch, sorted.
func (s *Store) OverrideIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// composedLocked computes the composed value of a slot. Caller holds mu.
func (s *Store) composedLocked(sl slot) ir.IRObject {
	canonical := s.canonical[sl.component][sl.entity]
	stack := s.overrides[sl]
	if len(stack) == 0 {
		return canonical.Clone()
	}
	top := stack[len(stack)-1]
	if top.value == nil {
		return nil
	}
	return canonical.Merge(top.value)
}
