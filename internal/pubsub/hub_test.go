package pubsub

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewHub(log)
}

func TestHub_SubscriberReceivesOrderEvents(t *testing.T) {
	h := newTestHub()
	events, cancel := h.Subscribe("order-1")
	defer cancel()

	h.Publish(Event{Type: EventOrderUpdated, OrderID: "order-1"})

	select {
	case ev := <-events:
		assert.Equal(t, EventOrderUpdated, ev.Type)
		assert.Equal(t, "order-1", ev.OrderID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestHub_SubscriberIgnoresOtherOrders(t *testing.T) {
	h := newTestHub()
	events, cancel := h.Subscribe("order-1")
	defer cancel()

	h.Publish(Event{Type: EventOrderUpdated, OrderID: "order-2"})

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_GlobalSeesEverything(t *testing.T) {
	h := newTestHub()
	events, cancel := h.SubscribeGlobal()
	defer cancel()

	h.Publish(Event{Type: EventNewOrder, OrderID: "order-1"})
	h.Publish(Event{Type: EventOrderLocked, OrderID: "order-2"})

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			got = append(got, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []string{EventNewOrder, EventOrderLocked}, got)
}

func TestHub_FanOutToMultipleSubscribers(t *testing.T) {
	h := newTestHub()
	a, cancelA := h.Subscribe("order-1")
	defer cancelA()
	b, cancelB := h.Subscribe("order-1")
	defer cancelB()

	h.Publish(Event{Type: EventOrderLocked, OrderID: "order-1"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, EventOrderLocked, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := newTestHub()
	events, cancel := h.Subscribe("order-1")

	cancel()

	_, open := <-events
	assert.False(t, open)

	// Publishing after cancel must not panic.
	h.Publish(Event{Type: EventOrderUpdated, OrderID: "order-1"})

	// Cancel is idempotent.
	cancel()
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := newTestHub()
	_, cancel := h.Subscribe("order-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Nobody drains the channel; publishing past the buffer must
		// still return.
		for i := 0; i < subscriberBuffer*2; i++ {
			h.Publish(Event{Type: EventOrderUpdated, OrderID: "order-1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a lagging subscriber")
	}
}

func TestHub_GlobalCancelIsIdempotent(t *testing.T) {
	h := newTestHub()
	events, cancel := h.SubscribeGlobal()

	cancel()
	cancel()

	_, open := <-events
	require.False(t, open)
}
