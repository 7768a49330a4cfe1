package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/store"
)

func owner(of ir.EntityID) ir.IRObject {
	return ir.Obj(ir.O("owner", ir.IRString(of)))
}

func faction(id int64) ir.IRObject {
	return ir.Obj(ir.O("id", ir.IRInt(id)))
}

func TestProxyRead_FollowsReferences(t *testing.T) {
	s, e := newEngine(t)
	// building -> player -> guild; only the guild carries Faction.
	require.NoError(t, s.Write("building", "Position", ir.Obj(ir.O("x", ir.IRInt(1)))))
	require.NoError(t, s.Write("building", "Owner", owner("player")))
	require.NoError(t, s.Write("player", "Owner", owner("guild")))
	require.NoError(t, s.Write("guild", "Faction", faction(2)))

	chain := func(depth int) []queryir.Fragment {
		return []queryir.Fragment{
			queryir.Has{Component: "Position"},
			queryir.ProxyRead{Via: "Owner", Field: "owner", Depth: depth, Match: []queryir.Fragment{
				queryir.HasValue{Component: "Faction", Value: faction(2)},
			}},
		}
	}

	got, err := e.RunQuery(chain(1))
	require.NoError(t, err)
	assert.Empty(t, got, "guild is two hops away")

	got, err = e.RunQuery(chain(2))
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityID{"building"}, got)
}

func TestProxyRead_CycleTerminates(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("a", "Owner", owner("b")))
	require.NoError(t, s.Write("b", "Owner", owner("a")))

	got, err := e.RunQuery([]queryir.Fragment{
		queryir.Has{Component: "Owner"},
		queryir.ProxyRead{Via: "Owner", Field: "owner", Depth: queryir.MaxDepth, Match: []queryir.Fragment{
			queryir.Has{Component: "Faction"},
		}},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProxyRead_IncrementalOnRemoteChange(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("building", "Position", ir.Obj(ir.O("x", ir.IRInt(1)))))
	require.NoError(t, s.Write("building", "Owner", owner("player")))

	sub, err := e.Register([]queryir.Fragment{
		queryir.Has{Component: "Position"},
		queryir.ProxyRead{Via: "Owner", Field: "owner", Match: []queryir.Fragment{
			queryir.HasValue{Component: "Faction", Value: faction(2)},
		}},
	})
	require.NoError(t, err)
	assert.True(t, sub.Proxied())
	assert.Empty(t, sub.Initial())

	// The change lands on another entity, yet flips the building.
	require.NoError(t, s.Write("player", "Faction", faction(2)))
	require.NoError(t, s.Write("player", "Faction", faction(3)))

	assert.Equal(t, []kinded{
		{"building", ir.Enter},
		{"building", ir.Exit},
	}, kinds(sub.Drain()))
}

func TestProxied_UnreachableComponentSkipsRescan(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("building", "Position", ir.Obj(ir.O("x", ir.IRInt(1)))))

	sub, err := e.Register([]queryir.Fragment{
		queryir.Has{Component: "Position"},
		queryir.ProxyRead{Via: "Owner", Field: "owner", Match: []queryir.Fragment{queryir.Has{Component: "Faction"}}},
	})
	require.NoError(t, err)

	require.NoError(t, s.Write("building", "Metadata", ir.Obj(ir.O("name", ir.IRString("mill")))))
	assert.Empty(t, sub.Drain())
}

func TestProxyExpand_AddsReferrers(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("guild", "Faction", faction(1)))
	require.NoError(t, s.Write("player", "Owner", owner("guild")))
	require.NoError(t, s.Write("building", "Owner", owner("player")))
	require.NoError(t, s.Write("building", "Position", ir.Obj(ir.O("x", ir.IRInt(1)))))
	require.NoError(t, s.Write("stray", "Owner", owner("nobody")))

	base := []queryir.Fragment{
		queryir.HasValue{Component: "Faction", Value: faction(1)},
	}

	got, err := e.RunQuery(append(base, queryir.ProxyExpand{Via: "Owner", Field: "owner"}))
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityID{"guild", "player"}, got)

	got, err = e.RunQuery(append(base, queryir.ProxyExpand{Via: "Owner", Field: "owner", Depth: 2}))
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityID{"building", "guild", "player"}, got)

	// Later fragments filter the widened set.
	got, err = e.RunQuery(append(base,
		queryir.ProxyExpand{Via: "Owner", Field: "owner", Depth: 2},
		queryir.Has{Component: "Position"},
	))
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityID{"building"}, got)
}

func TestProxyExpand_ArrayReferences(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("guild", "Faction", faction(1)))
	require.NoError(t, s.Write("alliance", "Members", ir.Obj(ir.O("of", ir.IRArray{ir.IRString("other"), ir.IRString("guild")}))))

	got, err := e.RunQuery([]queryir.Fragment{
		queryir.Has{Component: "Faction"},
		queryir.ProxyExpand{Via: "Members", Field: "of"},
	})
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityID{"alliance", "guild"}, got)
}

func requirement(holder string, items ...[2]int64) ir.IRObject {
	arr := make(ir.IRArray, len(items))
	for i, it := range items {
		arr[i] = ir.Obj(ir.O("kind", ir.IRInt(it[0])), ir.O("amount", ir.IRInt(it[1])))
	}
	return ir.Obj(ir.O("chest", ir.IRString(holder)), ir.O("want", arr))
}

func entry(holder string, kind, amount int64) ir.IRObject {
	return ir.Obj(
		ir.O("holder", ir.IRString(holder)),
		ir.O("kind", ir.IRInt(kind)),
		ir.O("amount", ir.IRInt(amount)),
	)
}

var coversTrade = queryir.Covers{Component: "Trade", Holder: "chest", Items: "want", Entry: "ChestEntry"}

func TestCovers(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("e1", "ChestEntry", entry("chest1", 1, 30)))
	require.NoError(t, s.Write("e2", "ChestEntry", entry("chest1", 1, 30)))
	require.NoError(t, s.Write("e3", "ChestEntry", entry("chest1", 2, 5)))
	require.NoError(t, s.Write("e4", "ChestEntry", entry("chest2", 1, 100)))

	require.NoError(t, s.Write("t-ok", "Trade", requirement("chest1", [2]int64{1, 50}, [2]int64{2, 5})))
	require.NoError(t, s.Write("t-short", "Trade", requirement("chest1", [2]int64{1, 61})))
	require.NoError(t, s.Write("t-missing", "Trade", requirement("chest1", [2]int64{3, 1})))
	require.NoError(t, s.Write("t-empty", "Trade", requirement("chest9")))

	got, err := e.RunQuery([]queryir.Fragment{queryir.Has{Component: "Trade"}, coversTrade})
	require.NoError(t, err)
	assert.Equal(t, []ir.EntityID{"t-empty", "t-ok"}, got)
}

func TestCovers_IncrementalOnInventoryChange(t *testing.T) {
	s, e := newEngine(t)
	require.NoError(t, s.Write("t1", "Trade", requirement("chest1", [2]int64{1, 10})))

	sub, err := e.Register([]queryir.Fragment{queryir.Has{Component: "Trade"}, coversTrade})
	require.NoError(t, err)

	require.NoError(t, s.Write("e1", "ChestEntry", entry("chest1", 1, 10)))
	require.NoError(t, s.Write("e1", "ChestEntry", entry("chest1", 1, 9)))

	assert.Equal(t, []kinded{
		{"t1", ir.Enter},
		{"t1", ir.Exit},
	}, kinds(sub.Drain()))
}

// countingReader counts reads of one component.
type countingReader struct {
	store.Reader
	component string
	reads     int
}

func (c *countingReader) Read(e ir.EntityID, component string) ir.IRObject {
	if component == c.component {
		c.reads++
	}
	return c.Reader.Read(e, component)
}

func TestCovers_ShortCircuits(t *testing.T) {
	s := store.New()
	for i := 0; i < 50; i++ {
		id := ir.EntityID(string(rune('A'+i%26)) + string(rune('a'+i/26)))
		require.NoError(t, s.Write(id, "ChestEntry", entry("chest1", 1, 10)))
	}
	require.NoError(t, s.Write("t1", "Trade", requirement("chest1", [2]int64{1, 20})))

	r := &countingReader{Reader: s, component: "ChestEntry"}
	assert.True(t, evaluator{r: r}.covers("t1", coversTrade))
	assert.Equal(t, 2, r.reads, "two entries of 10 satisfy a need of 20")
}
