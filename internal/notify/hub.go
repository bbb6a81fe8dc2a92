// Package notify fans canonical chat events out to host subscribers with a
// bounded replay backlog.
package notify

import (
	"sync"
	"time"

	"chatsdk/go-backend/internal/chatsdk"
)

const subscriberBuffer = 128

// Notification is one published event as seen by subscribers.
type Notification struct {
	Seq       int64
	Method    string
	Event     chatsdk.Event
	Published time.Time
}

// Hub is a chatsdk.Sink that keeps the last limit notifications and pushes new
// ones to subscribers. A subscriber that falls behind is closed rather than
// blocking the engine goroutine that delivers the event.
type Hub struct {
	mu      sync.Mutex
	prefix  string
	nextSeq int64
	limit   int
	history []Notification
	subs    map[int]chan Notification
	nextSub int
	closed  bool
	now     func() time.Time
}

func NewHub(prefix string, limit int) *Hub {
	if limit < 1 {
		limit = 1
	}
	return &Hub{
		prefix: prefix,
		limit:  limit,
		subs:   make(map[int]chan Notification),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Deliver implements chatsdk.Sink.
func (h *Hub) Deliver(ev chatsdk.Event) {
	h.Publish(ev)
}

func (h *Hub) Publish(ev chatsdk.Event) Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	n := Notification{
		Seq:       h.nextSeq,
		Method:    h.prefix + ev.Name(),
		Event:     ev,
		Published: h.now(),
	}
	if h.closed {
		return n
	}
	h.history = append(h.history, n)
	if len(h.history) > h.limit {
		h.history = append([]Notification(nil), h.history[len(h.history)-h.limit:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
	return n
}

// Subscribe returns the backlog after fromSeq, a channel of later
// notifications and a cancel func. The channel is closed on cancel, on Close
// and when the subscriber falls behind.
func (h *Hub) Subscribe(fromSeq int64) ([]Notification, <-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]Notification, 0)
	for _, n := range h.history {
		if n.Seq > fromSeq {
			replay = append(replay, n)
		}
	}

	ch := make(chan Notification, subscriberBuffer)
	if h.closed {
		close(ch)
		return replay, ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub)
			delete(h.subs, id)
		}
	}
	return replay, ch, cancel
}

func (h *Hub) BacklogSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Later events are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
