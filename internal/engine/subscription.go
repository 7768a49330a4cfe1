package engine

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// Subscription is one registered query: its live matching set and the
// stream of membership events that maintain it.
type Subscription struct {
	engine  *Engine
	id      int64
	chain   []queryir.Fragment
	reach   map[string]struct{}
	proxied bool

	initial []ir.EntityID

	// set is guarded by engine.mu.
	set map[ir.EntityID]struct{}

	queue *eventQueue[QueryEvent]
	once  sync.Once
}

func newSubscription(e *Engine, id int64, chain []queryir.Fragment) *Subscription {
	return &Subscription{
		engine:  e,
		id:      id,
		chain:   chain,
		reach:   queryir.Reachable(chain),
		proxied: queryir.IsProxied(chain),
		set:     make(map[ir.EntityID]struct{}),
		queue:   newEventQueue[QueryEvent](),
	}
}

// ID returns the query id stamped on its events.
func (s *Subscription) ID() int64 {
	return s.id
}

// Proxied reports whether the query is maintained by full re-evaluation.
func (s *Subscription) Proxied() bool {
	return s.proxied
}

// Initial returns the matching set computed at registration, sorted.
func (s *Subscription) Initial() []ir.EntityID {
	return slices.Clone(s.initial)
}

// Matching returns the current matching set, sorted. It reflects every
// store event delivered so far, including events not yet consumed from
// the subscription's queue.
func (s *Subscription) Matching() []ir.EntityID {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return sortedKeys(s.set)
}

// Contains reports whether an entity is currently in the matching set.
func (s *Subscription) Contains(e ir.EntityID) bool {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	_, ok := s.set[e]
	return ok
}

// TryNext returns the next queued event without blocking.
func (s *Subscription) TryNext() (QueryEvent, bool) {
	return s.queue.TryDequeue()
}

// Next blocks until an event is available, the subscription is closed, or
// ctx is done. After Close, queued events are still returned before
// ErrSubscriptionClosed.
func (s *Subscription) Next(ctx context.Context) (QueryEvent, error) {
	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			return ev, nil
		}
		if s.queue.Closed() {
			return QueryEvent{}, ErrSubscriptionClosed
		}
		select {
		case <-ctx.Done():
			return QueryEvent{}, ctx.Err()
		case <-s.queue.Wait():
		}
	}
}

// Drain returns every queued event without blocking.
func (s *Subscription) Drain() []QueryEvent {
	return s.queue.DrainAll()
}

// Run delivers events to fn until ctx is done or the subscription closes.
// Returns nil on close and ctx.Err() on cancellation.
func (s *Subscription) Run(ctx context.Context, fn func(QueryEvent)) error {
	for {
		ev, err := s.Next(ctx)
		if errors.Is(err, ErrSubscriptionClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(ev)
	}
}

// Close disposes the query. No events are produced after Close returns.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.engine.remove(s)
		s.queue.Close()
		s.engine.logger.Debug("query closed", "query_id", s.id)
	})
}

func sortedKeys(set map[ir.EntityID]struct{}) []ir.EntityID {
	out := make([]ir.EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
