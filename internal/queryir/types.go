package queryir

import "github.com/roach88/realmsync/internal/ir"

// Fragment is one clause of a query chain.
//
// This is a sealed interface; only types in this package implement it.
type Fragment interface {
	fragmentNode()
}

// Has matches entities on which Component is present.
type Has struct {
	Component string
}

func (Has) fragmentNode() {}

// HasValue matches entities whose Component value contains every field of
// Value with an equal value. Fields absent from Value are unconstrained.
type HasValue struct {
	Component string
	Value     ir.IRObject
}

func (HasValue) fragmentNode() {}

// Not matches entities on which Component is absent.
type Not struct {
	Component string
}

func (Not) fragmentNode() {}

// NotValue matches entities on which Component is absent or does not
// contain Value.
type NotValue struct {
	Component string
	Value     ir.IRObject
}

func (NotValue) fragmentNode() {}

// ProxyRead matches an entity when some entity reachable from it satisfies
// every fragment of Match.
//
// Reachability follows references: the string field Field of component Via
// on the current entity names the next entity. Hops are taken from 1 up to
// Depth; a Depth of 0 means 1.
//
// Example: "buildings whose owner's owner is in faction 2"
//
//	ProxyRead{Via: "Owner", Field: "owner", Depth: 2,
//	    Match: []Fragment{HasValue{Component: "Faction", Value: ir.Obj(ir.O("id", ir.IRInt(2)))}}}
type ProxyRead struct {
	Via   string
	Field string
	Depth int
	Match []Fragment
}

func (ProxyRead) fragmentNode() {}

// ProxyExpand widens the current set with entities that reference a member
// of it: any entity whose Via.Field names a member joins. The expansion is
// repeated Depth times (0 means 1), each level referencing the previous.
// Fragments after ProxyExpand filter the widened set.
type ProxyExpand struct {
	Via   string
	Field string
	Depth int
}

func (ProxyExpand) fragmentNode() {}

// Covers is the inventory coverage predicate.
//
// The candidate's Component value names an inventory holder in its Holder
// field and lists required resources in its Items field, an array of
// {kind: int, amount: int} objects. The inventory is every entity whose
// Entry component has holder equal to that id; each entry carries kind and
// amount. The candidate matches when, for every required kind, the summed
// amount of entries of that kind reaches the required amount.
//
// Evaluation stops at the first entry that completes the requirement.
type Covers struct {
	Component string
	Holder    string
	Items     string
	Entry     string
}

func (Covers) fragmentNode() {}

// Entry component field names read by Covers.
const (
	EntryHolderField = "holder"
	EntryKindField   = "kind"
	EntryAmountField = "amount"
)

// DefaultDepth is used when a proxy fragment leaves Depth at zero.
const DefaultDepth = 1

// MaxDepth bounds proxy traversal.
const MaxDepth = 8

// EffectiveDepth returns d, or DefaultDepth when d is zero.
func EffectiveDepth(d int) int {
	if d == 0 {
		return DefaultDepth
	}
	return d
}

// IsProxied reports whether a chain needs full re-evaluation on change.
func IsProxied(chain []Fragment) bool {
	for _, f := range chain {
		switch f.(type) {
		case ProxyRead, *ProxyRead, ProxyExpand, *ProxyExpand, Covers, *Covers:
			return true
		}
	}
	return false
}

// Reachable returns the set of component names whose changes can affect
// the chain's matching set, including components read through proxies.
func Reachable(chain []Fragment) map[string]struct{} {
	out := make(map[string]struct{})
	addReachable(out, chain)
	return out
}

func addReachable(out map[string]struct{}, chain []Fragment) {
	for _, f := range chain {
		switch frag := Deref(f).(type) {
		case Has:
			out[frag.Component] = struct{}{}
		case HasValue:
			out[frag.Component] = struct{}{}
		case Not:
			out[frag.Component] = struct{}{}
		case NotValue:
			out[frag.Component] = struct{}{}
		case ProxyRead:
			out[frag.Via] = struct{}{}
			addReachable(out, frag.Match)
		case ProxyExpand:
			out[frag.Via] = struct{}{}
		case Covers:
			out[frag.Component] = struct{}{}
			out[frag.Entry] = struct{}{}
		}
	}
}

// Deref returns the value form of a pointer fragment, so callers switch
// over value types only. Nil pointers become a nil Fragment.
func Deref(f Fragment) Fragment {
	switch frag := f.(type) {
	case *Has:
		if frag == nil {
			return nil
		}
		return *frag
	case *HasValue:
		if frag == nil {
			return nil
		}
		return *frag
	case *Not:
		if frag == nil {
			return nil
		}
		return *frag
	case *NotValue:
		if frag == nil {
			return nil
		}
		return *frag
	case *ProxyRead:
		if frag == nil {
			return nil
		}
		return *frag
	case *ProxyExpand:
		if frag == nil {
			return nil
		}
		return *frag
	case *Covers:
		if frag == nil {
			return nil
		}
		return *frag
	default:
		return f
	}
}
