package engine

import (
	"slices"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/store"
)

// evaluator computes fragment truth against a composed read view.
// It holds no state between calls.
type evaluator struct {
	r store.Reader
}

// run evaluates a validated chain from scratch and returns the matching
// entities in sorted order.
func (ev evaluator) run(chain []queryir.Fragment) []ir.EntityID {
	set := ev.candidates(chain[0])
	for _, f := range chain[1:] {
		switch frag := queryir.Deref(f).(type) {
		case queryir.ProxyExpand:
			set = ev.expand(set, frag)
		default:
			set = slices.DeleteFunc(set, func(e ir.EntityID) bool {
				return !ev.matches(e, frag)
			})
		}
	}
	if set == nil {
		set = []ir.EntityID{}
	}
	return set
}

// candidates resolves the first fragment by direct lookup.
func (ev evaluator) candidates(first queryir.Fragment) []ir.EntityID {
	switch frag := queryir.Deref(first).(type) {
	case queryir.Has:
		return ev.r.Entities(frag.Component)
	case queryir.HasValue:
		return ev.r.Find(frag.Component, frag.Value)
	default:
		return nil
	}
}

// matchesAll reports whether one entity satisfies every fragment of a
// chain that contains no ProxyExpand.
func (ev evaluator) matchesAll(e ir.EntityID, chain []queryir.Fragment) bool {
	for _, f := range chain {
		if !ev.matches(e, f) {
			return false
		}
	}
	return true
}

// matches evaluates a per-entity fragment. ProxyExpand is set-level and
// never reaches here.
func (ev evaluator) matches(e ir.EntityID, f queryir.Fragment) bool {
	switch frag := queryir.Deref(f).(type) {
	case queryir.Has:
		return ev.r.Read(e, frag.Component) != nil
	case queryir.HasValue:
		return ev.r.Read(e, frag.Component).Contains(frag.Value)
	case queryir.Not:
		return ev.r.Read(e, frag.Component) == nil
	case queryir.NotValue:
		return !ev.r.Read(e, frag.Component).Contains(frag.Value)
	case queryir.ProxyRead:
		return ev.proxyRead(e, frag)
	case queryir.Covers:
		return ev.covers(e, frag)
	default:
		return false
	}
}

// proxyRead walks references breadth first for up to Depth hops and stops
// at the first reachable entity that satisfies Match.
func (ev evaluator) proxyRead(e ir.EntityID, frag queryir.ProxyRead) bool {
	visited := map[ir.EntityID]bool{e: true}
	frontier := []ir.EntityID{e}
	for hop := 0; hop < queryir.EffectiveDepth(frag.Depth) && len(frontier) > 0; hop++ {
		var next []ir.EntityID
		for _, x := range frontier {
			for _, target := range refs(ev.r.Read(x, frag.Via), frag.Field) {
				if visited[target] {
					continue
				}
				visited[target] = true
				if ev.matchesAll(target, frag.Match) {
					return true
				}
				next = append(next, target)
			}
		}
		frontier = next
	}
	return false
}

// expand adds every entity whose Via.Field references a member of the
// previous level, for Depth levels.
func (ev evaluator) expand(set []ir.EntityID, frag queryir.ProxyExpand) []ir.EntityID {
	result := make(map[ir.EntityID]bool, len(set))
	level := make(map[ir.EntityID]bool, len(set))
	for _, e := range set {
		result[e] = true
		level[e] = true
	}

	referrers := ev.r.Entities(frag.Via)
	for d := 0; d < queryir.EffectiveDepth(frag.Depth) && len(level) > 0; d++ {
		next := make(map[ir.EntityID]bool)
		for _, x := range referrers {
			if result[x] {
				continue
			}
			for _, target := range refs(ev.r.Read(x, frag.Via), frag.Field) {
				if level[target] {
					next[x] = true
					break
				}
			}
		}
		for x := range next {
			result[x] = true
		}
		level = next
	}

	out := make([]ir.EntityID, 0, len(result))
	for e := range result {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// covers checks the candidate's requirement list against its holder's
// inventory entries, returning as soon as every kind is satisfied.
func (ev evaluator) covers(e ir.EntityID, frag queryir.Covers) bool {
	req := ev.r.Read(e, frag.Component)
	if req == nil {
		return false
	}
	holder, ok := req[frag.Holder].(ir.IRString)
	if !ok {
		return false
	}
	items, ok := req[frag.Items].(ir.IRArray)
	if !ok {
		return false
	}

	remaining := make(map[int64]int64)
	for _, item := range items {
		obj, ok := item.(ir.IRObject)
		if !ok {
			return false
		}
		kind, kok := obj[queryir.EntryKindField].(ir.IRInt)
		amount, aok := obj[queryir.EntryAmountField].(ir.IRInt)
		if !kok || !aok {
			return false
		}
		if amount > 0 {
			remaining[int64(kind)] += int64(amount)
		}
	}
	if len(remaining) == 0 {
		return true
	}

	entries := ev.r.Find(frag.Entry, ir.Obj(ir.O(queryir.EntryHolderField, holder)))
	for _, entry := range entries {
		v := ev.r.Read(entry, frag.Entry)
		kind, kok := v[queryir.EntryKindField].(ir.IRInt)
		amount, aok := v[queryir.EntryAmountField].(ir.IRInt)
		if !kok || !aok {
			continue
		}
		need, wanted := remaining[int64(kind)]
		if !wanted {
			continue
		}
		if int64(amount) >= need {
			delete(remaining, int64(kind))
			if len(remaining) == 0 {
				return true
			}
		} else {
			remaining[int64(kind)] = need - int64(amount)
		}
	}
	return false
}

// refs extracts entity references from a field holding an id string or an
// array of id strings.
func refs(value ir.IRObject, field string) []ir.EntityID {
	switch v := value[field].(type) {
	case ir.IRString:
		if v == "" {
			return nil
		}
		return []ir.EntityID{ir.EntityID(v)}
	case ir.IRArray:
		out := make([]ir.EntityID, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(ir.IRString); ok && s != "" {
				out = append(out, ir.EntityID(s))
			}
		}
		return out
	default:
		return nil
	}
}
