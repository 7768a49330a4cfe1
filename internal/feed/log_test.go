package feed

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqs(entries []Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Seq
	}
	return out
}

func TestLog_NewestFirst(t *testing.T) {
	l := NewLog(3)
	for seq := int64(1); seq <= 5; seq++ {
		l.Append(Entry{Seq: seq, Pattern: "p", Entity: "0x1"})
	}
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int64{5, 4, 3}, seqs(l.Entries()))
	assert.Equal(t, int64(2), l.Dropped())
}

func TestLog_OutOfOrderAppends(t *testing.T) {
	l := NewLog(4)
	for _, seq := range []int64{3, 1, 4, 2} {
		require.True(t, l.Append(Entry{Seq: seq}))
	}
	assert.Equal(t, []int64{4, 3, 2, 1}, seqs(l.Entries()))

	// Newer than the oldest: evicts seq 1.
	assert.True(t, l.Append(Entry{Seq: 6}))
	// Older than everything held while full: refused.
	assert.False(t, l.Append(Entry{Seq: 1}))
	assert.Equal(t, []int64{6, 4, 3, 2}, seqs(l.Entries()))
}

func TestLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewLog(0).Cap())
}

func TestLog_CopiesComponents(t *testing.T) {
	l := NewLog(2)
	comps := []string{"Balance"}
	l.Append(Entry{Seq: 1, Components: comps})
	comps[0] = "mutated"
	assert.Equal(t, []string{"Balance"}, l.Entries()[0].Components)
}

// TestLog_BurstResolvedOutOfOrder appends a shuffled burst from many
// goroutines and checks the capacity bound and ordering.
func TestLog_BurstResolvedOutOfOrder(t *testing.T) {
	const capacity = 16
	const burst = 500
	l := NewLog(capacity)

	order := rand.New(rand.NewPCG(3, 5)).Perm(burst)
	var wg sync.WaitGroup
	for _, i := range order {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			l.Append(Entry{Seq: seq})
			assert.LessOrEqual(t, l.Len(), capacity)
		}(int64(i + 1))
	}
	wg.Wait()

	got := seqs(l.Entries())
	require.Len(t, got, capacity)
	for i := range got {
		assert.Equal(t, int64(burst-i), got[i])
	}
}
