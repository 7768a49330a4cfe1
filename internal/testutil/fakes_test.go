package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
)

func TestFakeChannel_DeliversInOrderThenFails(t *testing.T) {
	ch := NewFakeChannel()
	ch.Push("0x1", "Balance")
	ch.Push("0x2", "Trade", "TradeStatus")
	boom := errors.New("boom")
	ch.Fail(boom)

	ctx := context.Background()
	n, err := ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.EntityID("0x1"), n.EntityID)

	n, err = ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Trade", "TradeStatus"}, n.Changed)

	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestFakeChannel_Close(t *testing.T) {
	ch := NewFakeChannel()
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	assert.True(t, ch.Closed())

	_, err := ch.Next(context.Background())
	assert.ErrorIs(t, err, indexclient.ErrChannelClosed)
}

func TestFakeFetcher_Ungated(t *testing.T) {
	f := NewFakeFetcher()
	f.Set("0x1", "Balance", ir.Obj(ir.O("amount", ir.IRInt(5))))

	got, err := f.Fetch(context.Background(), "0x1", []string{"Balance", "Owner"})
	require.NoError(t, err)
	assert.Equal(t, map[string]ir.IRObject{"Balance": ir.Obj(ir.O("amount", ir.IRInt(5)))}, got)
	assert.Equal(t, 1, f.Calls("0x1"))
}

func TestFakeFetcher_FailNext(t *testing.T) {
	f := NewFakeFetcher()
	f.FailNext("0x1", errors.New("first"))

	_, err := f.Fetch(context.Background(), "0x1", []string{"Balance"})
	assert.EqualError(t, err, "first")

	_, err = f.Fetch(context.Background(), "0x1", []string{"Balance"})
	assert.NoError(t, err)
}

func TestFakeFetcher_GatedResolvesInTestOrder(t *testing.T) {
	f := NewFakeFetcher()
	f.Gate()

	results := make(chan string, 2)
	for _, id := range []ir.EntityID{"0xa", "0xb"} {
		go func() {
			_, _ = f.Fetch(context.Background(), id, []string{"Balance"})
			results <- string(id)
		}()
	}

	pending, err := f.Pending(2, time.Second)
	require.NoError(t, err)

	byEntity := map[ir.EntityID]*PendingFetch{}
	for _, p := range pending {
		byEntity[p.Entity] = p
	}
	byEntity["0xb"].Resolve(nil)
	assert.Equal(t, "0xb", <-results)
	byEntity["0xa"].Release()
	assert.Equal(t, "0xa", <-results)
}

func TestFakeFetcher_PendingTimeout(t *testing.T) {
	f := NewFakeFetcher()
	_, err := f.Pending(1, 10*time.Millisecond)
	assert.Error(t, err)
}

func TestFakeFetcher_Snapshot(t *testing.T) {
	f := NewFakeFetcher()
	f.Set("0xb", "Owner", ir.Obj(ir.O("address", ir.IRString("0x1"))))
	f.Set("0xa", "Owner", ir.Obj(ir.O("address", ir.IRString("0x2"))))

	snaps, err := f.Snapshot(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, ir.EntityID("0xa"), snaps[0].EntityID)

	f.FailSnapshot(errors.New("down"))
	_, err = f.Snapshot(context.Background(), nil)
	assert.EqualError(t, err, "down")
}
