// Package stream fans dashboard events (applied update batches, rolling
// performance averages) out to websocket subscribers.
package stream

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types sent to subscribers.
const (
	TypeUpdateBatch = "update_batch"
	TypeMetrics     = "metrics"
	TypeHello       = "hello"
)

// Message is the envelope written to every subscriber.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Sent    time.Time   `json:"sent"`
}

type subscriber struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (s *subscriber) write(msg Message) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(msg)
}

// Hub tracks subscribers. "Visible" means at least one subscriber is
// connected; listeners registered with OnVisibilityChange hear every flip.
type Hub struct {
	upgrader websocket.Upgrader

	// notifyMu orders visibility deliveries; each one reads the subscriber
	// count at delivery time so a late event can never report stale state.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	listeners map[int]func(visible bool)
	nextID    int
	closed    bool
}

func NewHub() *Hub {
	return &Hub{
		// zero CheckOrigin: browsers must be same-origin, non-browser clients
		// send no Origin and pass
		upgrader:  websocket.Upgrader{},
		subs:      map[*subscriber]struct{}{},
		listeners: map[int]func(bool){},
	}
}

// HandleSubscribe upgrades the request and registers the connection.
func (h *Hub) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	s := &subscriber{conn: c}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = c.Close()
		return
	}
	h.subs[s] = struct{}{}
	becameVisible := len(h.subs) == 1
	h.mu.Unlock()
	log.Printf("dashboard subscriber connected remote=%s", r.RemoteAddr)

	_ = s.write(Message{Type: TypeHello, Sent: time.Now()})
	if becameVisible {
		h.notify()
	}
	go h.readLoop(s)
}

// readLoop drains client frames so close and ping are processed.
func (h *Hub) readLoop(s *subscriber) {
	defer h.drop(s)
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s]
	delete(h.subs, s)
	becameHidden := ok && len(h.subs) == 0 && !h.closed
	h.mu.Unlock()
	_ = s.conn.Close()
	if !ok {
		return
	}
	log.Printf("dashboard subscriber disconnected remote=%s", s.conn.RemoteAddr())
	if becameHidden {
		h.notify()
	}
}

// Broadcast writes a message to every subscriber; a failed write drops that
// subscriber.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return
	}
	msg := Message{Type: msgType, Payload: payload, Sent: time.Now()}
	for _, s := range subs {
		if err := s.write(msg); err != nil {
			log.Printf("ws send failed remote=%s: %v", s.conn.RemoteAddr(), err)
			go h.drop(s)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// OnVisibilityChange registers fn and immediately reports the current state.
func (h *Hub) OnVisibilityChange(fn func(visible bool)) func() {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	visible := len(h.subs) > 0
	h.mu.Unlock()
	fn(visible)
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *Hub) notify() {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	h.mu.RLock()
	visible := len(h.subs) > 0
	fns := make([]func(bool), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.RUnlock()
	for _, fn := range fns {
		fn(visible)
	}
}

// Close disconnects every subscriber. Further subscriptions are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = map[*subscriber]struct{}{}
	h.mu.Unlock()
	for s := range subs {
		_ = s.conn.Close()
	}
}
