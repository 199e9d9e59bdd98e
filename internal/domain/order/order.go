package order

import (
	"fmt"
	"time"
)

const AggregateType = "Order"

type Status string

const (
	StatusActive           Status = "active"
	StatusLocked           Status = "locked"
	StatusReadyForDelivery Status = "ready_for_delivery"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// validTransitions defines allowed state transitions. Transitions only move
// forward; completed and cancelled are terminal.
var validTransitions = map[Status][]Status{
	StatusActive:           {StatusLocked, StatusCancelled},
	StatusLocked:           {StatusReadyForDelivery, StatusCompleted},
	StatusReadyForDelivery: {StatusCompleted},
	StatusCompleted:        {}, // terminal state
	StatusCancelled:        {}, // terminal state
}

// Location is the pickup/delivery area the order is organized for.
type Location struct {
	City string `json:"city"`
	Area string `json:"area"`
}

// Participant is a user who has committed a quantity to an order.
type Participant struct {
	UserID        string        `json:"user_id"`
	Quantity      float64       `json:"quantity"`
	TotalPrice    float64       `json:"total_price"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	JoinedAt      time.Time     `json:"joined_at"`
}

// PaymentRecord captures one payment attempt against an order. The collection
// is always present on the aggregate, possibly empty.
type PaymentRecord struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Amount        float64       `json:"amount"`
	Method        string        `json:"method"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Status        PaymentStatus `json:"status"`
	RecordedAt    time.Time     `json:"recorded_at"`
}

// Order is the aggregate root: the pooled purchase together with its
// participant list, treated as one consistency unit.
type Order struct {
	ID               string          `json:"id"`
	Organizer        string          `json:"organizer"`
	ItemName         string          `json:"item_name"`
	Description      string          `json:"description,omitempty"`
	Category         string          `json:"category"`
	Unit             string          `json:"unit"`
	Image            string          `json:"image,omitempty"`
	TotalQuantity    float64         `json:"total_quantity"`
	MinimumThreshold float64         `json:"minimum_threshold"`
	PricePerUnit     float64         `json:"price_per_unit"`
	RetailPrice      *float64        `json:"retail_price,omitempty"`
	CurrentQuantity  float64         `json:"current_quantity"`
	Status           Status          `json:"status"`
	Participants     []Participant   `json:"participants"`
	Payments         []PaymentRecord `json:"payments"`
	Location         Location        `json:"location"`
	Deadline         time.Time       `json:"deadline"`
	LockedAt         *time.Time      `json:"locked_at,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	DeliveryTime     *time.Time      `json:"delivery_time,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Version          int             `json:"version"`
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// Transition moves the order to the target status, rejecting anything the
// state machine does not allow.
func (o *Order) Transition(target Status) error {
	if !o.CanTransitionTo(target) {
		return o.transitionError(target)
	}
	o.Status = target
	return nil
}

// transitionError returns an appropriate error for an invalid transition.
func (o *Order) transitionError(target Status) error {
	switch {
	case o.IsTerminal():
		return ErrOrderTerminal
	case o.Status == StatusLocked && target == StatusLocked:
		return ErrAlreadyLocked
	case o.Status != StatusActive && target == StatusLocked:
		return ErrOrderNotActive
	case o.Status != StatusActive && target == StatusCancelled:
		return ErrOrderNotActive
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrConflict, o.Status, target)
	}
}

// IsTerminal reports whether the order reached a terminal state.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

// Participant returns the participant entry for the given user, if any.
func (o *Order) Participant(userID string) (*Participant, bool) {
	for i := range o.Participants {
		if o.Participants[i].UserID == userID {
			return &o.Participants[i], true
		}
	}
	return nil, false
}

// AddParticipant appends a new participant and increments the pooled quantity.
// It enforces the aggregate invariants: positive quantity, one entry per user,
// and CurrentQuantity never exceeding TotalQuantity.
func (o *Order) AddParticipant(userID string, quantity float64, now time.Time) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if _, ok := o.Participant(userID); ok {
		return ErrAlreadyJoined
	}
	if o.CurrentQuantity+quantity > o.TotalQuantity {
		return fmt.Errorf("%w: only %g %s remaining", ErrQuantityExceeds, o.RemainingQuantity(), o.Unit)
	}

	o.Participants = append(o.Participants, Participant{
		UserID:        userID,
		Quantity:      quantity,
		TotalPrice:    quantity * o.PricePerUnit,
		PaymentStatus: PaymentPending,
		JoinedAt:      now,
	})
	o.CurrentQuantity += quantity
	return nil
}

// RemoveParticipant removes the user's entry and decrements the pooled
// quantity by their committed amount.
func (o *Order) RemoveParticipant(userID string) (Participant, error) {
	for i := range o.Participants {
		if o.Participants[i].UserID == userID {
			p := o.Participants[i]
			o.Participants = append(o.Participants[:i], o.Participants[i+1:]...)
			o.CurrentQuantity -= p.Quantity
			return p, nil
		}
	}
	return Participant{}, ErrNotParticipant
}

// SetPaymentStatus updates the matching participant's payment status.
func (o *Order) SetPaymentStatus(userID string, status PaymentStatus, method string) error {
	p, ok := o.Participant(userID)
	if !ok {
		return ErrNotParticipant
	}
	p.PaymentStatus = status
	if method != "" {
		p.PaymentMethod = method
	}
	return nil
}

// RecordPayment appends a payment record to the aggregate.
func (o *Order) RecordPayment(rec PaymentRecord) {
	o.Payments = append(o.Payments, rec)
}

// AllPaid reports whether every participant has paid. An order with no
// participants is never considered fully paid.
func (o *Order) AllPaid() bool {
	if len(o.Participants) == 0 {
		return false
	}
	for i := range o.Participants {
		if o.Participants[i].PaymentStatus != PaymentPaid {
			return false
		}
	}
	return true
}

// HasCommittedFunds reports whether any payment was ever recorded against the
// order. Such orders are retained on cancel instead of deleted.
func (o *Order) HasCommittedFunds() bool {
	return len(o.Payments) > 0
}

// IsThresholdReached reports whether the pooled quantity reached the minimum.
func (o *Order) IsThresholdReached() bool {
	return o.CurrentQuantity >= o.MinimumThreshold
}

// RemainingQuantity is the quantity still open for joining.
func (o *Order) RemainingQuantity() float64 {
	if r := o.TotalQuantity - o.CurrentQuantity; r > 0 {
		return r
	}
	return 0
}

// ProgressPercentage is the pooled share of the total, capped at 100.
func (o *Order) ProgressPercentage() float64 {
	if o.TotalQuantity == 0 {
		return 0
	}
	// Multiply before dividing so whole and half-unit pools come out exact.
	pct := o.CurrentQuantity * 100 / o.TotalQuantity
	if pct > 100 {
		return 100
	}
	return pct
}

// TotalRevenue sums the totals of participants who have paid.
func (o *Order) TotalRevenue() float64 {
	var total float64
	for i := range o.Participants {
		if o.Participants[i].PaymentStatus == PaymentPaid {
			total += o.Participants[i].TotalPrice
		}
	}
	return total
}

// Clone returns a deep copy of the order so published snapshots and cached
// reads never alias the stored aggregate.
func (o *Order) Clone() *Order {
	c := *o
	c.Participants = make([]Participant, len(o.Participants))
	copy(c.Participants, o.Participants)
	c.Payments = make([]PaymentRecord, len(o.Payments))
	copy(c.Payments, o.Payments)
	if o.Tags != nil {
		c.Tags = make([]string, len(o.Tags))
		copy(c.Tags, o.Tags)
	}
	if o.RetailPrice != nil {
		v := *o.RetailPrice
		c.RetailPrice = &v
	}
	if o.LockedAt != nil {
		v := *o.LockedAt
		c.LockedAt = &v
	}
	if o.CompletedAt != nil {
		v := *o.CompletedAt
		c.CompletedAt = &v
	}
	if o.DeliveryTime != nil {
		v := *o.DeliveryTime
		c.DeliveryTime = &v
	}
	return &c
}
