package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/engine"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/store"
)

func TestAssertMatchingSet_OrderInsensitive(t *testing.T) {
	result := NewResult()
	result.Matching["q"] = []ir.EntityID{"0x1", "0x2"}

	err := assertMatchingSet(result, Assertion{Query: "q", Entities: []EntityRef{{ID: "0x2"}, {ID: "0x1"}}})
	assert.NoError(t, err)

	err = assertMatchingSet(result, Assertion{Query: "q", Entities: []EntityRef{{ID: "0x1"}}})
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertMatchingSet, ae.Type)
}

func TestAssertEventCount_ByKind(t *testing.T) {
	result := NewResult()
	result.AddQueryTrace(0, "q", engine.QueryEvent{Seq: 1, Entity: "0x1", Kind: ir.Enter})
	result.AddQueryTrace(1, "q", engine.QueryEvent{Seq: 2, Entity: "0x1", Kind: ir.Update})
	result.AddQueryTrace(2, "q", engine.QueryEvent{Seq: 3, Entity: "0x1", Kind: ir.Exit})

	assert.NoError(t, assertEventCount(result, Assertion{Query: "q", Count: 3}))
	assert.NoError(t, assertEventCount(result, Assertion{Query: "q", Kind: "update", Count: 1}))
	assert.Error(t, assertEventCount(result, Assertion{Query: "q", Kind: "exit", Count: 2}))
	assert.Error(t, assertEventCount(result, Assertion{Query: "q", Kind: "moved", Count: 0}))
}

func TestAssertReadValue(t *testing.T) {
	st := store.New()
	require.NoError(t, st.Write("0x1", "Status", ir.Obj(ir.O("value", ir.IRInt(1)))))
	require.NoError(t, st.AddOverride("op-1", "0x1", "Status", ir.Obj(ir.O("value", ir.IRInt(2)))))

	composed := Assertion{Entity: EntityRef{ID: "0x1"}, Component: "Status", Value: ir.Obj(ir.O("value", ir.IRInt(2)))}
	assert.NoError(t, assertReadValue(st, composed))

	canonical := Assertion{Entity: EntityRef{ID: "0x1"}, Component: "Status", Value: ir.Obj(ir.O("value", ir.IRInt(1))), Canonical: true}
	assert.NoError(t, assertReadValue(st, canonical))

	absent := Assertion{Entity: EntityRef{ID: "0x9"}, Component: "Status"}
	assert.NoError(t, assertReadValue(st, absent))

	err := assertReadValue(st, Assertion{Entity: EntityRef{ID: "0x1"}, Component: "Status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")
}

func TestEvaluateAssertions_ReadValueNeedsStore(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertReadValue}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "requires store context")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertEventCount,
		Expected: "query q emits 1 events",
		Actual:   "0",
		Trace: []TraceEvent{
			{Type: EventStep, Step: 0, Action: "write", Entity: "0x1"},
			{Type: EventQuery, Step: 0, Query: "q", Kind: "enter", Entity: "0x1", Component: "Status"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[1] step 0 write 0x1")
	assert.Contains(t, msg, "[2] q enter 0x1 via Status")
}
