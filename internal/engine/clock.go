package engine

import "sync/atomic"

// Clock hands out the sequence numbers that order what a watcher sees.
//
// One Clock is shared by the engine (QueryEvent.Seq) and the sync pipeline
// (notification stamps, which become feed.Entry.Seq), so query events and
// feed entries printed side by side interleave in the order they happened.
// The zero value is ready to use and safe for concurrent use.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first stamp is 1.
func NewClock() *Clock {
	return new(Clock)
}

// Next returns a stamp greater than every stamp handed out before it.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current returns the latest stamp handed out, or 0 before the first.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
