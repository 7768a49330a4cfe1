package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// FakeFetcher serves component values from memory.
//
// By default Fetch answers immediately from the values set with Set. After
// Gate, every Fetch parks as a PendingFetch until the test resolves it,
// which lets tests choose the order in which concurrent fetches complete.
// Gated fetches ignore ctx so a test can resolve them after teardown.
type FakeFetcher struct {
	mu       sync.Mutex
	data     map[ir.EntityID]map[string]ir.IRObject
	failures map[ir.EntityID][]error
	calls    map[ir.EntityID]int
	gated    bool
	pending  []*PendingFetch
	arrived  chan struct{}

	snapshotErr error
}

// PendingFetch is a gated Fetch waiting for the test.
type PendingFetch struct {
	Entity ir.EntityID
	Names  []string

	owner  *FakeFetcher
	result chan fetchResult
	once   sync.Once
}

type fetchResult struct {
	values map[string]ir.IRObject
	err    error
}

// NewFakeFetcher returns an ungated fetcher with no data.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		data:     make(map[ir.EntityID]map[string]ir.IRObject),
		failures: make(map[ir.EntityID][]error),
		calls:    make(map[ir.EntityID]int),
		arrived:  make(chan struct{}, 1024),
	}
}

// Set stores a value served for entity/component. A nil value removes it.
func (f *FakeFetcher) Set(entity ir.EntityID, component string, value ir.IRObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == nil {
		delete(f.data[entity], component)
		if len(f.data[entity]) == 0 {
			delete(f.data, entity)
		}
		return
	}
	if f.data[entity] == nil {
		f.data[entity] = make(map[string]ir.IRObject)
	}
	f.data[entity][component] = value.Clone()
}

// FailNext queues errors returned by the next Fetch calls for entity,
// one per call, before normal behaviour resumes.
func (f *FakeFetcher) FailNext(entity ir.EntityID, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[entity] = append(f.failures[entity], errs...)
}

// FailSnapshot makes Snapshot return err.
func (f *FakeFetcher) FailSnapshot(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotErr = err
}

// Gate parks every subsequent Fetch until resolved by the test.
func (f *FakeFetcher) Gate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gated = true
}

// Calls returns how many times Fetch was called for entity.
func (f *FakeFetcher) Calls(entity ir.EntityID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[entity]
}

// Fetch implements the pipeline's pull interface.
func (f *FakeFetcher) Fetch(ctx context.Context, entity ir.EntityID, names []string) (map[string]ir.IRObject, error) {
	f.mu.Lock()
	f.calls[entity]++
	if errs := f.failures[entity]; len(errs) > 0 {
		f.failures[entity] = errs[1:]
		f.mu.Unlock()
		return nil, errs[0]
	}
	if !f.gated {
		defer f.mu.Unlock()
		return f.lookupLocked(entity, names), nil
	}
	p := &PendingFetch{
		Entity: entity,
		Names:  slices.Clone(names),
		owner:  f,
		result: make(chan fetchResult, 1),
	}
	f.pending = append(f.pending, p)
	f.mu.Unlock()
	f.arrived <- struct{}{}

	r := <-p.result
	return r.values, r.err
}

func (f *FakeFetcher) lookupLocked(entity ir.EntityID, names []string) map[string]ir.IRObject {
	out := make(map[string]ir.IRObject, len(names))
	for _, name := range names {
		if v, ok := f.data[entity][name]; ok {
			out[name] = v.Clone()
		}
	}
	return out
}

// Pending waits until at least n gated fetches are parked and returns the
// first n in arrival order. It fails the wait after timeout.
func (f *FakeFetcher) Pending(n int, timeout time.Duration) ([]*PendingFetch, error) {
	deadline := time.After(timeout)
	for {
		f.mu.Lock()
		if len(f.pending) >= n {
			out := slices.Clone(f.pending[:n])
			f.mu.Unlock()
			return out, nil
		}
		have := len(f.pending)
		f.mu.Unlock()

		select {
		case <-f.arrived:
		case <-deadline:
			return nil, fmt.Errorf("waited for %d pending fetches, have %d", n, have)
		}
	}
}

// Release resolves the fetch with the fetcher's current data.
func (p *PendingFetch) Release() {
	p.owner.mu.Lock()
	values := p.owner.lookupLocked(p.Entity, p.Names)
	p.owner.mu.Unlock()
	p.resolve(fetchResult{values: values})
}

// Resolve resolves the fetch with explicit values.
func (p *PendingFetch) Resolve(values map[string]ir.IRObject) {
	p.resolve(fetchResult{values: values})
}

// Reject resolves the fetch with err.
func (p *PendingFetch) Reject(err error) {
	p.resolve(fetchResult{err: err})
}

func (p *PendingFetch) resolve(r fetchResult) {
	p.once.Do(func() { p.result <- r })
}

// Snapshot returns every stored entity in id order. The filter chain is
// ignored; resync filtering is exercised against the devnet indexer.
func (f *FakeFetcher) Snapshot(ctx context.Context, chain []queryir.Fragment) ([]indexclient.EntitySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	ids := make([]ir.EntityID, 0, len(f.data))
	for id := range f.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]indexclient.EntitySnapshot, 0, len(ids))
	for _, id := range ids {
		comps := make(map[string]ir.IRObject, len(f.data[id]))
		for name, v := range f.data[id] {
			comps[name] = v.Clone()
		}
		out = append(out, indexclient.EntitySnapshot{EntityID: id, Components: comps})
	}
	return out, nil
}
