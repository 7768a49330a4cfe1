package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/store"
	"github.com/roach88/realmsync/internal/testutil"
)

const player ir.EntityID = "0xe"

var errRejected = errors.New("ledger rejected transaction")

func balance(n int64) ir.IRObject {
	return ir.Obj(ir.O("amount", ir.IRInt(n)))
}

// spend predicts a balance decrement.
func spend(r store.Reader, amount int64) ([]Effect, error) {
	cur := r.Read(player, "Balance")
	have, ok := cur["amount"].(ir.IRInt)
	if !ok {
		return nil, errors.New("no balance")
	}
	return []Effect{{Entity: player, Component: "Balance", Value: balance(int64(have) - amount)}}, nil
}

func setup(t *testing.T, ids ...string) (*store.Store, *Wrapper) {
	t.Helper()
	s := store.New()
	require.NoError(t, s.Write(player, "Balance", balance(100)))
	return s, New(s, WithIDGenerator(testutil.NewFixedIDs(ids...)))
}

func TestWrap_PredictionVisibleDuringCall(t *testing.T) {
	s, w := setup(t, "op-1")

	var during ir.IRObject
	var liveIDs []string
	call := Wrap(w, "spend", spend, func(ctx context.Context, amount int64) (string, error) {
		during = s.Read(player, "Balance")
		liveIDs = s.OverrideIDs()
		return "tx-1", nil
	})

	tx, err := call(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx)
	assert.Equal(t, balance(70), during)
	assert.Equal(t, []string{"op-1"}, liveIDs)

	// Removal is unconditional, even on success.
	assert.Equal(t, balance(100), s.Read(player, "Balance"))
	assert.Empty(t, s.OverrideIDs())
}

func TestWrap_FailedCallRollsBack(t *testing.T) {
	s, w := setup(t, "op-1")

	call := Wrap(w, "spend", spend, func(ctx context.Context, amount int64) (string, error) {
		return "", errRejected
	})

	_, err := call(context.Background(), 30)
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, balance(100), s.Read(player, "Balance"))
}

func TestWrap_FailedCallExposesNewerCanonical(t *testing.T) {
	s, w := setup(t, "op-1")

	call := Wrap(w, "spend", spend, func(ctx context.Context, amount int64) (string, error) {
		// The pipeline writes a newer canonical value while the call is
		// in flight; the override keeps hiding it.
		require.NoError(t, s.Write(player, "Balance", balance(90)))
		assert.Equal(t, balance(70), s.Read(player, "Balance"))
		return "", errRejected
	})

	_, err := call(context.Background(), 30)
	require.Error(t, err)
	assert.Equal(t, balance(90), s.Read(player, "Balance"))
}

func TestWrap_PanicStillCleansUp(t *testing.T) {
	s, w := setup(t, "op-1")

	call := Wrap(w, "spend", spend, func(ctx context.Context, amount int64) (string, error) {
		panic("transport exploded")
	})

	assert.PanicsWithValue(t, "transport exploded", func() {
		_, _ = call(context.Background(), 30)
	})
	assert.Equal(t, balance(100), s.Read(player, "Balance"))
	assert.Empty(t, s.OverrideIDs())
}

func TestWrap_PredictionErrorStillCalls(t *testing.T) {
	s, w := setup(t, "op-1")

	called := false
	failing := func(r store.Reader, amount int64) ([]Effect, error) {
		return nil, errors.New("cannot predict")
	}
	call := Wrap(w, "spend", failing, func(ctx context.Context, amount int64) (string, error) {
		called = true
		assert.Empty(t, s.OverrideIDs())
		return "tx", nil
	})

	_, err := call(context.Background(), 30)
	require.NoError(t, err)
	assert.True(t, called)
}

func TestWrap_RejectedEffectSkipped(t *testing.T) {
	schemas, err := ir.NewSchemas(ir.ComponentSchema{
		Name:   "Balance",
		Fields: map[string]ir.FieldType{"amount": ir.FieldInt},
	})
	require.NoError(t, err)
	s := store.New(store.WithSchemas(schemas))
	w := New(s, WithIDGenerator(testutil.NewFixedIDs("op-1")))

	predict := func(r store.Reader, _ struct{}) ([]Effect, error) {
		return []Effect{
			{Entity: player, Component: "Balance", Value: balance(5)},
			{Entity: player, Component: "Unknown", Value: balance(5)},
		}, nil
	}
	var during ir.IRObject
	call := Wrap(w, "mixed", predict, func(ctx context.Context, _ struct{}) (struct{}, error) {
		during = s.Read(player, "Balance")
		return struct{}{}, nil
	})
	_, err = call(context.Background(), struct{}{})
	require.NoError(t, err)
	assert.Equal(t, balance(5), during)
}

func TestWrap_ConcurrentCallsUseDistinctIDs(t *testing.T) {
	s := store.New()
	require.NoError(t, s.Write(player, "Balance", balance(100)))
	w := New(s)

	var ids []string
	inner := Wrap(w, "inner", spend, func(ctx context.Context, amount int64) (int, error) {
		ids = s.OverrideIDs()
		return 0, nil
	})
	outer := Wrap(w, "outer", spend, func(ctx context.Context, amount int64) (int, error) {
		// Prediction of the inner call stacks on the outer one.
		_, err := inner(ctx, 10)
		return 0, err
	})

	_, err := outer(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, balance(100), s.Read(player, "Balance"))
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
