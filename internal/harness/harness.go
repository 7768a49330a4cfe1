package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/realmsync/internal/engine"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/optimistic"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/realm"
	"github.com/roach88/realmsync/internal/store"
	"github.com/roach88/realmsync/internal/testutil"
)

// ErrLedgerRejected is what the scripted ledger returns for a failing command.
var ErrLedgerRejected = errors.New("ledger rejected submission")

// Harness is the test execution engine for one scenario.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	commands *realm.Commands
	ledger   *scriptedLedger
	queries  []registered
	logger   *slog.Logger
}

type registered struct {
	name  string
	chain []queryir.Fragment
	sub   *engine.Subscription
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store with override ids
// drawn from a deterministic sequence, so traces are reproducible.
//
// Execution flow:
// 1. Build the schema registry and the store, engine and command stack
// 2. Register queries in declaration order
// 3. Execute steps, draining query events after each
// 4. Cross-check every live matching set against fresh evaluation
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	schemas, err := buildSchemas(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build schemas: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st := store.New(store.WithSchemas(schemas), store.WithLogger(logger))
	eng := engine.New(st, engine.WithLogger(logger))
	defer eng.Close()

	prefix := scenario.OverridePrefix
	if prefix == "" {
		prefix = "op"
	}
	w := optimistic.New(st,
		optimistic.WithIDGenerator(testutil.NewSequenceIDs(prefix)),
		optimistic.WithLogger(logger))
	ledger := &scriptedLedger{store: st}

	h := &Harness{
		store:    st,
		engine:   eng,
		commands: realm.NewCommands(w, st, ledger),
		ledger:   ledger,
		logger:   logger,
	}

	result := NewResult()
	for _, q := range scenario.Queries {
		chain, err := queryir.FromSpecs(q.Fragments)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
		sub, err := eng.Register(chain)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Name, err)
		}
		h.queries = append(h.queries, registered{name: q.Name, chain: chain, sub: sub})
		result.Initial[q.Name] = sub.Initial()
	}

	ctx := context.Background()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		h.drain(i, result)
	}

	for _, q := range h.queries {
		live := q.sub.Matching()
		result.Matching[q.name] = live
		fresh, err := engine.RunQuery(st, q.chain)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.name, err)
		}
		if !slices.Equal(live, fresh) {
			result.AddError(fmt.Sprintf("query %s: incremental set %v differs from fresh evaluation %v", q.name, live, fresh))
		}
	}
	result.Overrides = st.OverrideIDs()

	actx := &AssertionContext{Store: st}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// execute runs one step and records its marker.
func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Write != nil:
		ws := step.Write
		if err := h.store.Write(ws.Entity.ID, ws.Component, ws.Value); err != nil {
			return err
		}
		result.AddStepTrace(TraceEvent{Step: i, Action: "write", Entity: string(ws.Entity.ID), Component: ws.Component})

	case step.Override != nil:
		ov := step.Override
		if err := h.store.AddOverride(ov.ID, ov.Entity.ID, ov.Component, ov.Value); err != nil {
			return err
		}
		result.AddStepTrace(TraceEvent{Step: i, Action: "override", Entity: string(ov.Entity.ID), Component: ov.Component, Override: ov.ID})

	case step.RemoveOverride != "":
		h.store.RemoveOverride(step.RemoveOverride)
		result.AddStepTrace(TraceEvent{Step: i, Action: "remove_override", Override: step.RemoveOverride})

	case step.Command != nil:
		h.ledger.arm(step.Command.Fail, step.Command.During)
		var (
			action string
			id     ir.EntityID
			err    error
		)
		switch {
		case step.Command.CreateTrade != nil:
			action = "create_trade"
			id, err = h.commands.CreateTrade(ctx, *step.Command.CreateTrade)
		case step.Command.AcceptTrade != nil:
			action = "accept_trade"
			decl := step.Command.AcceptTrade
			id, err = h.commands.AcceptTrade(ctx, realm.AcceptTradeArgs{Trade: decl.Trade.ID, Taker: decl.Taker})
		}
		if dErr := h.ledger.duringErr; dErr != nil {
			return fmt.Errorf("%s: during: %w", action, dErr)
		}
		ev := TraceEvent{Step: i, Action: action, Entity: string(id)}
		if err != nil {
			ev.Error = err.Error()
		}
		result.AddStepTrace(ev)
	}
	return nil
}

// drain moves every pending query event into the trace in global order.
func (h *Harness) drain(step int, result *Result) {
	type named struct {
		query string
		ev    engine.QueryEvent
	}
	var all []named
	for _, q := range h.queries {
		for _, ev := range q.sub.Drain() {
			all = append(all, named{query: q.name, ev: ev})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ev.Seq < all[j].ev.Seq })
	for _, n := range all {
		result.AddQueryTrace(step, n.query, n.ev)
	}
}

// scriptedLedger stands in for the remote ledger. Accepted submissions are
// written straight into the canonical layer, as the sync pipeline would
// after the indexer reports them.
type scriptedLedger struct {
	store *store.Store

	fail      bool
	during    []Step
	ran       bool
	duringErr error
}

func (l *scriptedLedger) arm(fail bool, during []Step) {
	l.fail = fail
	l.during = during
	l.ran = false
	l.duringErr = nil
}

func (l *scriptedLedger) Apply(_ context.Context, entity ir.EntityID, components map[string]ir.IRObject) error {
	if !l.ran {
		l.ran = true
		for _, step := range l.during {
			ws := step.Write
			if err := l.store.Write(ws.Entity.ID, ws.Component, ws.Value); err != nil {
				l.duringErr = err
				return err
			}
		}
	}
	if l.fail {
		return ErrLedgerRejected
	}
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := l.store.Write(entity, name, components[name]); err != nil {
			return err
		}
	}
	return nil
}
