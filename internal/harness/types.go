package harness

import (
	"github.com/roach88/realmsync/internal/engine"
	"github.com/roach88/realmsync/internal/ir"
)

// Trace event types.
const (
	EventStep  = "step"
	EventQuery = "query"
)

// TraceEvent is either a step marker or a query event.
// Step markers carry Action (and Error when a command failed); query events
// carry the query name and the membership transition.
type TraceEvent struct {
	Type      string `json:"type"`
	Step      int    `json:"step"`
	Action    string `json:"action,omitempty"`
	Query     string `json:"query,omitempty"`
	Entity    string `json:"entity,omitempty"`
	Component string `json:"component,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Override  string `json:"override,omitempty"`
	Error     string `json:"error,omitempty"`
	Seq       int64  `json:"seq,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Trace contains step markers and query events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Initial holds each query's matching set at registration.
	Initial map[string][]ir.EntityID `json:"initial"`

	// Matching holds each query's live matching set after the last step.
	Matching map[string][]ir.EntityID `json:"matching"`

	// Events holds each query's events, in emission order.
	Events map[string][]engine.QueryEvent `json:"-"`

	// Overrides lists override ids still live after the last step.
	Overrides []string `json:"overrides,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Initial:  make(map[string][]ir.EntityID),
		Matching: make(map[string][]ir.EntityID),
		Events:   make(map[string][]engine.QueryEvent),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStepTrace adds a step marker to the trace.
func (r *Result) AddStepTrace(ev TraceEvent) {
	ev.Type = EventStep
	r.Trace = append(r.Trace, ev)
}

// AddQueryTrace adds a query event to the trace.
func (r *Result) AddQueryTrace(step int, query string, ev engine.QueryEvent) {
	r.Events[query] = append(r.Events[query], ev)
	r.Trace = append(r.Trace, TraceEvent{
		Type:      EventQuery,
		Step:      step,
		Query:     query,
		Entity:    string(ev.Entity),
		Component: ev.Component,
		Kind:      ev.Kind.String(),
		Override:  ev.Override,
		Seq:       ev.Seq,
	})
}
