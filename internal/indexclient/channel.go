package indexclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Next after Close.
var ErrChannelClosed = errors.New("push channel closed")

// Channel is a live websocket subscription to push notifications.
type Channel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	msgs chan Notification
	errc chan error
	done chan struct{}
	once sync.Once
}

// Dial opens the push channel at url (ws:// or wss://).
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial push channel %s: %w", url, err)
	}

	c := &Channel{
		conn:   conn,
		logger: logger,
		msgs:   make(chan Notification, 64),
		errc:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop owns the connection's read side. Invalid messages are logged
// and skipped; a transport error ends the loop.
func (c *Channel) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.errc <- fmt.Errorf("read push channel: %w", err)
			}
			return
		}

		n, err := DecodeNotification(data)
		if err != nil {
			c.logger.Warn("dropping push message", "error", err)
			continue
		}

		select {
		case c.msgs <- n:
		case <-c.done:
			return
		}
	}
}

// Next returns the next valid notification. It fails when ctx is done, the
// connection breaks, or the channel is closed.
func (c *Channel) Next(ctx context.Context) (Notification, error) {
	select {
	case n := <-c.msgs:
		return n, nil
	case err := <-c.errc:
		return Notification{}, err
	case <-c.done:
		return Notification{}, ErrChannelClosed
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

// Close shuts the connection. Safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
