package realm

import (
	"github.com/roach88/realmsync/internal/ir"
)

// Component names.
const (
	Identity    = "Identity"
	Owner       = "Owner"
	Metadata    = "Metadata"
	Position    = "Position"
	Balance     = "Balance"
	Trade       = "Trade"
	TradeStatus = "TradeStatus"
	ChestEntry  = "ChestEntry"
)

// Trade status values carried in TradeStatus.value.
const (
	StatusOpen     int64 = 0
	StatusAccepted int64 = 1
	StatusClosed   int64 = 2
)

// Schemas returns the realm's component schemas.
func Schemas() ir.Schemas {
	s, err := ir.NewSchemas(componentSchemas()...)
	if err != nil {
		panic(err)
	}
	return s
}

func componentSchemas() []ir.ComponentSchema {
	return []ir.ComponentSchema{
		{Name: Identity, Fields: map[string]ir.FieldType{"name": ir.FieldString}},
		{Name: Owner, Fields: map[string]ir.FieldType{"address": ir.FieldString}},
		{Name: Metadata, Fields: map[string]ir.FieldType{"label": ir.FieldString, "level": ir.FieldInt}},
		{Name: Position, Fields: map[string]ir.FieldType{"x": ir.FieldInt, "y": ir.FieldInt}},
		{
			Name: Balance,
			Keys: []string{"holder", "kind"},
			Fields: map[string]ir.FieldType{
				"holder": ir.FieldString,
				"kind":   ir.FieldInt,
				"amount": ir.FieldInt,
			},
		},
		{
			Name: Trade,
			Keys: []string{"maker", "nonce"},
			Fields: map[string]ir.FieldType{
				"maker": ir.FieldString,
				"nonce": ir.FieldInt,
				"taker": ir.FieldString,
				"chest": ir.FieldString,
				"offer": ir.FieldArray,
				"want":  ir.FieldArray,
			},
		},
		{Name: TradeStatus, Fields: map[string]ir.FieldType{"value": ir.FieldInt}},
		{
			Name: ChestEntry,
			Keys: []string{"holder", "kind"},
			Fields: map[string]ir.FieldType{
				"holder": ir.FieldString,
				"kind":   ir.FieldInt,
				"amount": ir.FieldInt,
			},
		},
	}
}

// Resource is an amount of one resource kind.
type Resource struct {
	Kind   int64 `yaml:"kind" json:"kind"`
	Amount int64 `yaml:"amount" json:"amount"`
}

// Ids below hash the schema key fields in declared order, matching
// ir.EntityIDFromSchema for the same values.

// BalanceID is the entity holding holder's balance of one resource kind.
func BalanceID(holder string, kind int64) ir.EntityID {
	return ir.MustEntityID(ir.IRString(holder), ir.IRInt(kind))
}

// TradeID is the entity of the trade a maker opened with nonce.
func TradeID(maker string, nonce int64) ir.EntityID {
	return ir.MustEntityID(ir.IRString(maker), ir.IRInt(nonce))
}

// ChestEntryID is the entity recording one resource kind held in a chest.
func ChestEntryID(chest ir.EntityID, kind int64) ir.EntityID {
	return ir.MustEntityID(ir.IRString(string(chest)), ir.IRInt(kind))
}

// BalanceValue builds a Balance component value.
func BalanceValue(holder string, kind, amount int64) ir.IRObject {
	return ir.Obj(
		ir.O("holder", ir.IRString(holder)),
		ir.O("kind", ir.IRInt(kind)),
		ir.O("amount", ir.IRInt(amount)),
	)
}

// ChestEntryValue builds a ChestEntry component value.
func ChestEntryValue(chest ir.EntityID, kind, amount int64) ir.IRObject {
	return ir.Obj(
		ir.O("holder", ir.IRString(string(chest))),
		ir.O("kind", ir.IRInt(kind)),
		ir.O("amount", ir.IRInt(amount)),
	)
}

// StatusValue builds a TradeStatus component value.
func StatusValue(status int64) ir.IRObject {
	return ir.Obj(ir.O("value", ir.IRInt(status)))
}

// Amount returns the amount field of a Balance or ChestEntry value, or 0.
func Amount(v ir.IRObject) int64 {
	n, _ := v["amount"].(ir.IRInt)
	return int64(n)
}

func resourceArray(rs []Resource) ir.IRArray {
	arr := make(ir.IRArray, len(rs))
	for i, r := range rs {
		arr[i] = ir.Obj(ir.O("kind", ir.IRInt(r.Kind)), ir.O("amount", ir.IRInt(r.Amount)))
	}
	return arr
}

func resourcesOf(v ir.IRValue) []Resource {
	arr, _ := v.(ir.IRArray)
	out := make([]Resource, 0, len(arr))
	for _, item := range arr {
		obj, ok := item.(ir.IRObject)
		if !ok {
			continue
		}
		kind, _ := obj["kind"].(ir.IRInt)
		amount, _ := obj["amount"].(ir.IRInt)
		out = append(out, Resource{Kind: int64(kind), Amount: int64(amount)})
	}
	return out
}
