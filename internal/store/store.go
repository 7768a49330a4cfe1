package store

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/realmsync/internal/ir"
)

// ErrUnknownComponent is returned when a schema registry is configured and
// a write names a component it does not contain.
var ErrUnknownComponent = errors.New("unknown component")

// Reader is the read side of the composed view.
// Predictors and query evaluation depend on this rather than *Store.
type Reader interface {
	Read(entity ir.EntityID, component string) ir.IRObject
	Entities(component string) []ir.EntityID
	Find(component string, subset ir.IRObject) []ir.EntityID
}

// Listener receives update events. It runs with the store's emission lock
// held and must not call mutating Store methods.
type Listener func(ir.UpdateEvent)

type slot struct {
	entity    ir.EntityID
	component string
}

type listenerEntry struct {
	id int
	fn Listener
}

// Store is the canonical component store with its override layer.
type Store struct {
	schemas ir.Schemas
	logger  *slog.Logger

	// emitMu orders mutations and their event delivery.
	emitMu sync.Mutex

	mu        sync.RWMutex
	canonical map[string]map[ir.EntityID]ir.IRObject
	overrides map[slot][]patch
	byID      map[string][]slot

	lmu          sync.Mutex
	listeners    []listenerEntry
	nextListener int
}

// Option configures a Store.
type Option func(*Store)

// WithSchemas validates every written value against the registry and
// rejects unknown components.
func WithSchemas(schemas ir.Schemas) Option {
	return func(s *Store) {
		s.schemas = schemas
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates an empty store. Each call returns an isolated instance.
func New(opts ...Option) *Store {
	s := &Store{
		logger:    slog.Default(),
		canonical: make(map[string]map[ir.EntityID]ir.IRObject),
		overrides: make(map[slot][]patch),
		byID:      make(map[string][]slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schemas returns the configured registry, or nil.
func (s *Store) Schemas() ir.Schemas {
	return s.schemas
}

// Write replaces the canonical value of (entity, component). A nil value
// removes the component. An event is emitted if the composed value changed.
func (s *Store) Write(entity ir.EntityID, component string, value ir.IRObject) error {
	if err := s.validate(component, value); err != nil {
		return fmt.Errorf("write %s/%s: %w", entity, component, err)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	sl := slot{entity: entity, component: component}

	s.mu.Lock()
	prev := s.composedLocked(sl)
	byEntity := s.canonical[component]
	if value == nil {
		delete(byEntity, entity)
		if len(byEntity) == 0 {
			delete(s.canonical, component)
		}
	} else {
		if byEntity == nil {
			byEntity = make(map[ir.EntityID]ir.IRObject)
			s.canonical[component] = byEntity
		}
		byEntity[entity] = value.Clone()
	}
	next := s.composedLocked(sl)
	s.mu.Unlock()

	s.emitChange(sl, prev, next, "")
	return nil
}

// Read returns the composed value of (entity, component), or nil if absent.
// The returned object is a copy.
func (s *Store) Read(entity ir.EntityID, component string) ir.IRObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.composedLocked(slot{entity: entity, component: component})
}

// ReadCanonical returns the canonical value, ignoring overrides.
func (s *Store) ReadCanonical(entity ir.EntityID, component string) ir.IRObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canonical[component][entity].Clone()
}

// Has reports whether the component is present on the entity in the
// composed view.
func (s *Store) Has(entity ir.EntityID, component string) bool {
	return s.Read(entity, component) != nil
}

// Entities returns, in sorted order, every entity whose composed view
// carries the component.
func (s *Store) Entities(component string) []ir.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entitiesLocked(component)
}

// Find returns, in sorted order, every entity whose composed value of the
// component contains all fields of subset.
func (s *Store) Find(component string, subset ir.IRObject) []ir.EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ir.EntityID
	for _, e := range s.entitiesLocked(component) {
		if s.composedLocked(slot{entity: e, component: component}).Contains(subset) {
			out = append(out, e)
		}
	}
	return out
}

// Snapshot returns the composed values of every component on an entity.
func (s *Store) Snapshot(entity ir.EntityID) map[string]ir.IRObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]ir.IRObject)
	seen := make(map[string]bool)
	for component, byEntity := range s.canonical {
		if _, ok := byEntity[entity]; ok {
			seen[component] = true
		}
	}
	for sl := range s.overrides {
		if sl.entity == entity {
			seen[sl.component] = true
		}
	}
	for component := range seen {
		if v := s.composedLocked(slot{entity: entity, component: component}); v != nil {
			out[component] = v
		}
	}
	return out
}

// Subscribe registers a listener for update events and returns a function
// that removes it. Events emitted before Subscribe returns are not replayed.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.lmu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			defer s.lmu.Unlock()
			s.listeners = slices.DeleteFunc(s.listeners, func(l listenerEntry) bool {
				return l.id == id
			})
		})
	}
}

// Hold runs fn while no mutation can start or be mid-delivery, so fn sees
// a state that every listener has also seen. fn must not mutate the store,
// and Hold must not be called from a listener.
func (s *Store) Hold(fn func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	fn()
}

func (s *Store) validate(component string, value ir.IRObject) error {
	if s.schemas == nil {
		return nil
	}
	schema, ok := s.schemas[component]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, component)
	}
	if value == nil {
		return nil
	}
	return schema.Validate(value)
}

// entitiesLocked unions canonical holders and override slots, keeping only
// entities present in the composed view. Caller holds mu.
func (s *Store) entitiesLocked(component string) []ir.EntityID {
	set := make(map[ir.EntityID]struct{}, len(s.canonical[component]))
	for e := range s.canonical[component] {
		set[e] = struct{}{}
	}
	for sl := range s.overrides {
		if sl.component == component {
			set[sl.entity] = struct{}{}
		}
	}
	out := make([]ir.EntityID, 0, len(set))
	for e := range set {
		if s.composedLocked(slot{entity: e, component: component}) != nil {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}

// emitChange delivers one event for a composed-value transition.
// Caller holds emitMu and not mu.
func (s *Store) emitChange(sl slot, prev, next ir.IRObject, overrideID string) {
	kind := ir.KindOf(prev, next)
	if kind == 0 || (kind == ir.Update && ir.Equal(prev, next)) {
		return
	}
	ev := ir.UpdateEvent{
		Entity:    sl.entity,
		Component: sl.component,
		Previous:  prev,
		Value:     next,
		Kind:      kind,
		Override:  overrideID,
	}

	s.lmu.Lock()
	listeners := slices.Clone(s.listeners)
	s.lmu.Unlock()

	for _, l := range listeners {
		l.fn(ev)
	}
}
