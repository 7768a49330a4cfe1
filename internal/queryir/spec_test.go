package queryir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/realmsync/internal/ir"
)

func TestFromSpecs_YAML(t *testing.T) {
	src := `
- has: Position
- has_value: {component: Owner, value: {owner: "0xa11ce"}}
- not: Hidden
- proxy_read:
    via: Owner
    field: owner
    depth: 2
    match:
      - has_value: {component: Faction, value: {id: 2}}
- covers: {component: Trade, holder: chest, items: want, entry: ChestEntry}
`
	var specs []Spec
	require.NoError(t, yaml.Unmarshal([]byte(src), &specs))

	chain, err := FromSpecs(specs)
	require.NoError(t, err)
	assert.Equal(t, []Fragment{
		Has{Component: "Position"},
		HasValue{Component: "Owner", Value: ir.Obj(ir.O("owner", ir.IRString("0xa11ce")))},
		Not{Component: "Hidden"},
		ProxyRead{Via: "Owner", Field: "owner", Depth: 2, Match: []Fragment{
			HasValue{Component: "Faction", Value: ir.Obj(ir.O("id", ir.IRInt(2)))},
		}},
		Covers{Component: "Trade", Holder: "chest", Items: "want", Entry: "ChestEntry"},
	}, chain)
}

func TestSpec_JSONRoundTrip(t *testing.T) {
	chain := []Fragment{
		statusIs(1),
		NotValue{Component: "Trade", Value: ir.Obj(ir.O("maker", ir.IRString("bob")))},
		ProxyExpand{Via: "Owner", Field: "owner", Depth: 1},
	}
	specs, err := ToSpecs(chain)
	require.NoError(t, err)

	data, err := json.Marshal(specs)
	require.NoError(t, err)

	var decoded []Spec
	require.NoError(t, json.Unmarshal(data, &decoded))
	back, err := FromSpecs(decoded)
	require.NoError(t, err)
	assert.Equal(t, chain, back)
}

func TestSpec_ExactlyOneVariant(t *testing.T) {
	_, err := Spec{}.Fragment()
	assert.ErrorIs(t, err, ErrEmptySpec)

	_, err = Spec{Has: "A", Not: "B"}.Fragment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 variants")
}
