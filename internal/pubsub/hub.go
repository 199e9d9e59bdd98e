package pubsub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriber channel buffer; a subscriber that falls this far behind starts
// dropping events (at-most-once delivery).
const subscriberBuffer = 16

// Hub fans events out to per-order subscriptions and a global feed, the
// in-process equivalent of per-order socket rooms.
type Hub struct {
	mu      sync.RWMutex
	byOrder map[string]map[chan Event]struct{}
	global  map[chan Event]struct{}
	log     *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		byOrder: make(map[string]map[chan Event]struct{}),
		global:  make(map[chan Event]struct{}),
		log:     log,
	}
}

// Subscribe registers interest in one order's events. The returned cancel
// function unsubscribes and closes the channel.
func (h *Hub) Subscribe(orderID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.byOrder[orderID]
	if !ok {
		subs = make(map[chan Event]struct{})
		h.byOrder[orderID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if subs, ok := h.byOrder[orderID]; ok {
			if _, present := subs[ch]; present {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(h.byOrder, orderID)
			}
		}
		h.mu.Unlock()
	}
}

// SubscribeGlobal registers interest in every published event.
func (h *Hub) SubscribeGlobal() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.global[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if _, present := h.global[ch]; present {
			delete(h.global, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

// Publish delivers the event to the order's subscribers and the global feed.
// Sends are non-blocking; a full subscriber buffer drops the event.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.byOrder[ev.OrderID] {
		h.send(ch, ev)
	}
	for ch := range h.global {
		h.send(ch, ev)
	}
}

func (h *Hub) send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		if h.log != nil {
			h.log.WithFields(logrus.Fields{
				"component": "hub",
				"order_id":  ev.OrderID,
				"event":     ev.Type,
			}).Warn("subscriber lagging, event dropped")
		}
	}
}
