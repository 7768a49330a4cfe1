package feed

import (
	"slices"
	"sync"

	"github.com/roach88/realmsync/internal/ir"
)

// DefaultCapacity is used when NewLog is given a non-positive capacity.
const DefaultCapacity = 64

// Entry is one surfaced update.
type Entry struct {
	// Seq is the stamp of the notification that produced the entry.
	Seq        int64       `json:"seq"`
	Pattern    string      `json:"pattern"`
	Entity     ir.EntityID `json:"entity"`
	Components []string    `json:"components"`
}

// Log is a fixed-capacity record of the newest entries, ordered by Seq.
//
// Entries may be appended out of Seq order. When the log is full the
// entry with the lowest Seq is evicted; an incoming entry older than
// everything held is dropped.
type Log struct {
	mu       sync.Mutex
	entries  []Entry // ascending Seq
	capacity int
	dropped  int64
}

// NewLog creates an empty log.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Append inserts an entry at its Seq position. Returns false if the entry
// was dropped because the log is full of newer entries.
func (l *Log) Append(e Entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Components = slices.Clone(e.Components)
	i, _ := slices.BinarySearchFunc(l.entries, e.Seq, func(x Entry, seq int64) int {
		switch {
		case x.Seq < seq:
			return -1
		case x.Seq > seq:
			return 1
		default:
			return 0
		}
	})

	if len(l.entries) == l.capacity {
		l.dropped++
		if i == 0 {
			return false
		}
		// Evict the oldest and shift the insertion point with it.
		l.entries = slices.Delete(l.entries, 0, 1)
		i--
	}
	l.entries = slices.Insert(l.entries, i, e)
	return true
}

// Entries returns a copy of the log, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(out)-1-i] = e
	}
	return out
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cap returns the log's capacity.
func (l *Log) Cap() int {
	return l.capacity
}

// Dropped returns how many entries were evicted or refused.
func (l *Log) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
