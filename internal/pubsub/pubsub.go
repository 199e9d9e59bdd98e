// Package pubsub broadcasts typed order state changes to subscribers.
// Every event carries a full order snapshot, never a delta; delivery is
// at-most-once and never blocks the mutation path. Late subscribers query
// current state directly instead of relying on historical events.
package pubsub

import (
	"time"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// Event types published by the lifecycle service.
const (
	EventNewOrder         = "new-order"
	EventOrderUpdated     = "order-updated"
	EventOrderLocked      = "order-locked"
	EventOrderCompleted   = "order-completed"
	EventOrderCancelled   = "order-cancelled"
	EventPaymentCompleted = "payment-completed"
)

// Event is one state change of one order.
type Event struct {
	Type    string       `json:"type"`
	OrderID string       `json:"order_id"`
	Order   *order.Order `json:"order"`
	At      time.Time    `json:"at"`
}

// Publisher is implemented by anything that broadcasts committed state
// changes. Publish must not block the caller.
type Publisher interface {
	Publish(ev Event)
}
