package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/store"
)

// Engine maintains live matching sets for registered queries.
//
// The engine listens to the store's update stream. Each store event is
// evaluated synchronously inside the store's emission, so evaluation always
// sees exactly the state that produced the event. Resulting query events
// are handed to each Subscription's own queue and consumed asynchronously.
//
// Thread-safety model:
//   - Register, RunQuery, Close: safe from any goroutine, but never from a
//     store listener
//   - query events: delivered in store event order per subscription
type Engine struct {
	store  *store.Store
	logger *slog.Logger
	clock  *Clock

	mu      sync.Mutex
	queries []*Subscription // registration order
	nextID  int64
	closed  bool

	unsubscribe func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock used to stamp query events.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an engine attached to a store's update stream.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		logger: slog.Default(),
		clock:  NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.unsubscribe = s.Subscribe(e.handle)
	return e
}

// Register validates a fragment chain, computes its initial matching set
// and starts incremental maintenance. The first fragment must be Has or
// HasValue; otherwise a *QueryError with ErrCodeInvalidFirstFragment is
// returned and nothing is registered.
func (e *Engine) Register(chain []queryir.Fragment) (*Subscription, error) {
	result := queryir.Validate(chain)
	if !result.OK() {
		return nil, newQueryError(result.Problems)
	}
	for _, w := range result.Warnings {
		e.logger.Warn("query warning", "warning", w)
	}

	frags := make([]queryir.Fragment, len(chain))
	copy(frags, chain)

	var (
		sub *Subscription
		err error
	)
	// Hold keeps writers out between computing the initial set and
	// attaching the query, so no event is missed or double counted.
	e.store.Hold(func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.closed {
			err = &QueryError{Code: ErrCodeEngineClosed, Message: "engine is closed"}
			return
		}

		e.nextID++
		sub = newSubscription(e, e.nextID, frags)
		initial := evaluator{r: e.store}.run(frags)
		sub.initial = initial
		for _, id := range initial {
			sub.set[id] = struct{}{}
		}
		e.queries = append(e.queries, sub)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug("query registered",
		"query_id", sub.id,
		"fragments", len(frags),
		"proxied", sub.proxied,
		"initial", len(sub.initial))
	return sub, nil
}

// RunQuery evaluates a chain from scratch against the current composed
// view without registering it.
func (e *Engine) RunQuery(chain []queryir.Fragment) ([]ir.EntityID, error) {
	return RunQuery(e.store, chain)
}

// RunQuery validates and evaluates a chain against any read view.
func RunQuery(r store.Reader, chain []queryir.Fragment) ([]ir.EntityID, error) {
	result := queryir.Validate(chain)
	if !result.OK() {
		return nil, newQueryError(result.Problems)
	}
	return evaluator{r: r}.run(chain), nil
}

// Queries returns the number of live subscriptions.
func (e *Engine) Queries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queries)
}

// Close detaches the engine from the store and closes every subscription.
func (e *Engine) Close() {
	e.unsubscribe()

	e.mu.Lock()
	subs := e.queries
	e.queries = nil
	e.closed = true
	e.mu.Unlock()

	for _, s := range subs {
		s.queue.Close()
	}
	e.logger.Debug("engine closed", "queries", len(subs))
}

// remove detaches one subscription. Called by Subscription.Close.
func (e *Engine) remove(sub *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.queries {
		if s == sub {
			e.queries = append(e.queries[:i], e.queries[i+1:]...)
			return
		}
	}
}

// handle is the store listener. It runs under the store's emission lock.
func (e *Engine) handle(ev ir.UpdateEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	eval := evaluator{r: e.store}
	for _, sub := range e.queries {
		if _, relevant := sub.reach[ev.Component]; !relevant {
			continue
		}
		if sub.proxied {
			e.rescan(sub, eval, ev)
		} else {
			e.reevaluate(sub, eval, ev)
		}
	}
}

// reevaluate patches a direct query's set for the single affected entity.
func (e *Engine) reevaluate(sub *Subscription, eval evaluator, ev ir.UpdateEvent) {
	_, was := sub.set[ev.Entity]
	now := eval.matchesAll(ev.Entity, sub.chain)

	switch {
	case was && !now:
		delete(sub.set, ev.Entity)
		e.emit(sub, ev, ev.Entity, ir.Exit)
	case !was && now:
		sub.set[ev.Entity] = struct{}{}
		e.emit(sub, ev, ev.Entity, ir.Enter)
	case was && now:
		e.emit(sub, ev, ev.Entity, ir.Update)
	}
}

// rescan re-runs a proxied query and diffs against the previous set.
// Leavers and joiners are emitted in entity order; the event's own entity
// gets an Update when it stays.
func (e *Engine) rescan(sub *Subscription, eval evaluator, ev ir.UpdateEvent) {
	fresh := eval.run(sub.chain)
	next := make(map[ir.EntityID]struct{}, len(fresh))
	for _, id := range fresh {
		next[id] = struct{}{}
	}

	for _, id := range sortedKeys(sub.set) {
		if _, ok := next[id]; !ok {
			e.emit(sub, ev, id, ir.Exit)
		}
	}
	for _, id := range fresh {
		if _, ok := sub.set[id]; !ok {
			e.emit(sub, ev, id, ir.Enter)
		}
	}
	if _, stayed := sub.set[ev.Entity]; stayed {
		if _, ok := next[ev.Entity]; ok {
			e.emit(sub, ev, ev.Entity, ir.Update)
		}
	}
	sub.set = next
}

func (e *Engine) emit(sub *Subscription, cause ir.UpdateEvent, entity ir.EntityID, kind ir.UpdateKind) {
	qe := QueryEvent{
		Seq:       e.clock.Next(),
		Query:     sub.id,
		Entity:    entity,
		Kind:      kind,
		Component: cause.Component,
		Override:  cause.Override,
	}
	if !sub.queue.Enqueue(qe) {
		return
	}
	e.logger.Debug("query event",
		"query_id", sub.id,
		"entity_id", entity,
		"kind", kind.String(),
		"component", cause.Component,
		"seq", qe.Seq)
}

// QueryEvent reports a membership transition of one entity in a query's
// matching set.
type QueryEvent struct {
	Seq    int64         `json:"seq"`
	Query  int64         `json:"query"`
	Entity ir.EntityID   `json:"entity"`
	Kind   ir.UpdateKind `json:"kind"`
	// Component is the store component whose change caused the event.
	Component string `json:"component"`
	// Override is set when the cause was a speculative change.
	Override string `json:"override,omitempty"`
}

// String renders the event for logs and traces.
func (q QueryEvent) String() string {
	return fmt.Sprintf("#%d q%d %s %s via %s", q.Seq, q.Query, q.Kind, q.Entity, q.Component)
}
