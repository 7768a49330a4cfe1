package testutil

import (
	"context"
	"sync"

	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
)

// FakeChannel is a scripted push channel. Tests push notifications and
// transport failures; the pipeline reads them through Next.
type FakeChannel struct {
	msgs chan indexclient.Notification
	errc chan error
	done chan struct{}
	once sync.Once
}

// NewFakeChannel returns an open channel with room for 256 queued messages.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{
		msgs: make(chan indexclient.Notification, 256),
		errc: make(chan error, 1),
		done: make(chan struct{}),
	}
}

// Push queues a notification for entity naming the changed components.
func (c *FakeChannel) Push(entity ir.EntityID, changed ...string) {
	c.msgs <- indexclient.Notification{EntityID: entity, Changed: changed}
}

// Fail makes the next Next call return err once queued messages are read.
func (c *FakeChannel) Fail(err error) {
	c.errc <- err
}

// Next returns queued notifications in push order.
func (c *FakeChannel) Next(ctx context.Context) (indexclient.Notification, error) {
	select {
	case n := <-c.msgs:
		return n, nil
	default:
	}
	select {
	case n := <-c.msgs:
		return n, nil
	case err := <-c.errc:
		return indexclient.Notification{}, err
	case <-c.done:
		return indexclient.Notification{}, indexclient.ErrChannelClosed
	case <-ctx.Done():
		return indexclient.Notification{}, ctx.Err()
	}
}

// Close marks the channel closed. Safe to call more than once.
func (c *FakeChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeChannel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
