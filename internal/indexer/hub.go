package indexer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/realmsync/internal/indexclient"
)

const (
	subscriberBuffer = 256
	writeWait        = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// hub fans push notifications out to websocket subscribers. A subscriber
// whose buffer is full is disconnected rather than allowed to stall
// applies.
type hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newHub(logger *slog.Logger) *hub {
	return &hub{logger: logger, subs: make(map[*subscriber]struct{})}
}

// serve upgrades the request and blocks until the subscriber goes away.
func (h *hub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	sub := &subscriber{
		conn: conn,
		send: make(chan []byte, subscriberBuffer),
		done: make(chan struct{}),
	}
	if !h.add(sub) {
		conn.Close()
		return
	}
	h.logger.Info("subscriber connected", "remote", r.RemoteAddr)

	go sub.writeLoop()
	sub.readLoop()

	h.remove(sub)
	sub.stop()
	h.logger.Info("subscriber disconnected", "remote", r.RemoteAddr)
}

func (h *hub) add(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	return true
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

func (h *hub) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) publish(n indexclient.Notification) {
	b, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("encode notification", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- b:
		default:
			h.logger.Warn("disconnecting slow subscriber", "remote", s.conn.RemoteAddr().String())
			delete(h.subs, s)
			s.stop()
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.subs {
		delete(h.subs, s)
		s.stop()
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// writeLoop owns every write to the connection.
func (s *subscriber) writeLoop() {
	defer s.conn.Close()
	for {
		select {
		case b := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.stop()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "indexer closing"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readLoop discards client messages; it returns when the connection ends.
func (s *subscriber) readLoop() {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
