package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"rewardkit/core"
)

// Hub broadcasts engine events to subscribed channels. Subscriptions may be
// scoped to a single user so a profile widget only sees its own awards.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*sub
	next int
}

type sub struct {
	ch   chan core.Event
	user core.UserID // empty means all users
}

func NewHub() *Hub { return &Hub{subs: map[int]*sub{}} }

// Subscribe receives every engine event.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.subscribe("", buffer)
}

// SubscribeUser receives only events for the given user.
func (h *Hub) SubscribeUser(user core.UserID, buffer int) (int, <-chan core.Event) {
	return h.subscribe(user, buffer)
}

func (h *Hub) subscribe(user core.UserID, buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	s := &sub{ch: make(chan core.Event, buffer), user: user}
	h.subs[id] = s
	return id, s.ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]*sub, 0, len(h.subs))
	for _, s := range h.subs {
		receivers = append(receivers, s)
	}
	h.mu.RUnlock()
	for _, s := range receivers {
		if s.user != "" && s.user != ev.UserID {
			continue
		}
		select {
		case s.ch <- ev:
		default: /* drop if full */
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
