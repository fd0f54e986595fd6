// Package events broadcasts task lifecycle events to websocket subscribers,
// so a dashboard can watch approvals resolve live.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

const (
	// subscriberBuffer is how many events a subscriber may fall behind
	// before it is dropped.
	subscriberBuffer = 16

	writeTimeout = 5 * time.Second
)

// Event is one task lifecycle change.
type Event struct {
	Kind   string    `json:"kind"`
	Server string    `json:"server,omitempty"`
	Tool   string    `json:"tool,omitempty"`
	TaskID string    `json:"task_id,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

type subscriber struct {
	ch chan Event
}

// Hub fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full is disconnected instead of stalling the publisher.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool

	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Publish delivers ev to every subscriber. A zero At is stamped with the
// current time. Subscribers that cannot keep up are removed and their
// channel closed.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			delete(h.subs, sub)
			close(sub.ch)
			h.dropped.Add(1)
			h.logger.Warn("event subscriber dropped", "buffered", subscriberBuffer)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func is
// idempotent. The channel is closed when the subscriber is cancelled,
// dropped for falling behind, or the hub shuts down.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many subscribers have been disconnected for falling
// behind.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects all subscribers. Publish and Subscribe become no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// text messages until the client disconnects or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	// The client never sends data messages; CloseRead keeps control frames
	// flowing and cancels the context on disconnect.
	ctx := conn.CloseRead(r.Context())

	ch, cancel := h.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			if err := h.write(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event failed", "error", err)
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
