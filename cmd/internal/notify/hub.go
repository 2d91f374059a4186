package notify

import (
	"context"
	"log/slog"
	"sync"
)

const defaultSubscriberQueue = 64

// Hub fans events out to in-process subscribers keyed by host id. It backs
// the websocket feed; persistence and external delivery live elsewhere.
//
// Publish never blocks: a subscriber whose queue is full loses the event
// (the feed is a convenience channel, the store of record is the visit row).
type Hub struct {
	log *slog.Logger

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

// Subscription is one subscriber's event queue.
type Subscription struct {
	hostID string
	ch     chan Event
}

// Events returns the receive channel for this subscription.
func (s *Subscription) Events() <-chan Event { return s.ch }

// NewHub constructs a Hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a queue for the given host id.
func (h *Hub) Subscribe(hostID string) *Subscription {
	sub := &Subscription{hostID: hostID, ch: make(chan Event, defaultSubscriberQueue)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[hostID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[hostID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	set := h.subs[sub.hostID]
	if set != nil {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
		}
		if len(set) == 0 {
			delete(h.subs, sub.hostID)
		}
	}
	h.mu.Unlock()
}

// Publish delivers the event to every subscriber of its host, dropping on
// full queues.
func (h *Hub) Publish(_ context.Context, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.HostID] {
		select {
		case sub.ch <- ev:
		default:
			if h.log != nil {
				h.log.Warn("notify.drop", "host_id", ev.HostID, "type", ev.Type)
			}
		}
	}
}
