// Package hub fans out cache updates to long-lived TCP subscribers. Each
// subscriber gets its own goroutine and bounded backlog channel, so one
// slow client can never block delivery to the others.
package hub

import (
	"encoding/json"
	"net"
	"sync"
	"time"
)

// backlogCapacity bounds the number of queued pushes per subscriber before
// the oldest is dropped in favor of the newest.
const backlogCapacity = 32

// Exists is satisfied by the data cache; the hub only needs existence
// checks, never the sample itself, to validate SUBSCRIBE requests.
type Exists interface {
	Exists(id int64) bool
}

// PushFrame is the wire shape of one subscriber notification.
type PushFrame struct {
	ID    int64       `json:"i"`
	Name  string      `json:"n"`
	Value interface{} `json:"v"`
	TsMs  int64       `json:"t"`
	Type  string      `json:"type"`
}

type subscriber struct {
	conn    net.Conn
	queue   chan []byte
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

func newSubscriber(conn net.Conn) *subscriber {
	s := &subscriber{
		conn:  conn,
		queue: make(chan []byte, backlogCapacity),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case frame, ok := <-s.queue:
			if !ok {
				return
			}
			if _, err := s.conn.Write(frame); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// enqueue drops the oldest queued frame on overflow rather than blocking
// the publisher.
func (s *subscriber) enqueue(frame []byte, warn func(string)) {
	select {
	case s.queue <- frame:
		return
	default:
	}
	select {
	case <-s.queue:
		if warn != nil {
			warn("subscriber backlog full, dropped oldest frame")
		}
	default:
	}
	select {
	case s.queue <- frame:
	default:
	}
}

func (s *subscriber) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	_ = s.conn.Close()
}

func (s *subscriber) alive() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return !s.closed
}

// Hub owns the subscription table and every socket handed to it via
// Subscribe. No other component writes to a subscribed socket.
type Hub struct {
	cache Exists
	warn  func(string)

	mu   sync.Mutex
	subs map[int64][]*subscriber
}

// New creates a Hub backed by cache (used only to validate SUBSCRIBE
// requests against known ids). warn, if non-nil, receives a message each
// time a subscriber's backlog overflows.
func New(cache Exists, warn func(string)) *Hub {
	return &Hub{cache: cache, subs: make(map[int64][]*subscriber), warn: warn}
}

// errReply is the wire shape of a one-line JSON error response.
type errReply struct {
	Error string `json:"error"`
}

// Subscribe takes exclusive ownership of conn for id's updates. If id is
// unknown in the cache, it writes a single error line and closes conn
// itself instead of retaining it.
func (h *Hub) Subscribe(id int64, conn net.Conn) {
	if !h.cache.Exists(id) {
		b, _ := json.Marshal(errReply{Error: "Unknown variable ID"})
		_, _ = conn.Write(append(b, '\n'))
		_ = conn.Close()
		return
	}

	s := newSubscriber(conn)
	h.mu.Lock()
	h.subs[id] = append(h.subs[id], s)
	h.mu.Unlock()
}

// Publish serializes a push frame and enqueues it for every live subscriber
// of id, in the order subscribers currently hold it. A subscriber whose
// write fails is dropped; it never blocks delivery to the others.
func (h *Hub) Publish(id int64, name string, value interface{}) {
	frame := PushFrame{
		ID:    id,
		Name:  name,
		Value: value,
		TsMs:  time.Now().UnixMilli(),
		Type:  "data_update",
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	subs := h.subs[id]
	h.mu.Unlock()

	for _, s := range subs {
		if s.alive() {
			s.enqueue(b, h.warn)
		}
	}
}

// Reap removes subscribers whose socket is no longer open from every id's
// list. Intended to be called periodically by the caller (e.g. on a
// ticker).
func (h *Hub) Reap() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, subs := range h.subs {
		live := subs[:0]
		for _, s := range subs {
			if s.alive() {
				live = append(live, s)
			}
		}
		if len(live) == 0 {
			delete(h.subs, id)
		} else {
			h.subs[id] = live
		}
	}
}

// SubscriberCount returns how many live subscribers id currently has. Test
// and diagnostic use only.
func (h *Hub) SubscriberCount(id int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.subs[id] {
		if s.alive() {
			n++
		}
	}
	return n
}

// Shutdown closes every held subscriber socket. Called once, on gateway
// shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, subs := range h.subs {
		for _, s := range subs {
			s.close()
		}
		delete(h.subs, id)
	}
}
