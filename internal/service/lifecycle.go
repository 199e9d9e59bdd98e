// Package service implements the group-order lifecycle: commitments pool
// against a shared quantity target, the order locks when the minimum
// threshold is crossed, and asynchronous payment confirmations drive it to a
// terminal state.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/cache"
	"github.com/groshare/groupbuy/internal/domain/order"
	"github.com/groshare/groupbuy/internal/infrastructure/store"
	"github.com/groshare/groupbuy/internal/lock"
	"github.com/groshare/groupbuy/internal/notification"
	"github.com/groshare/groupbuy/internal/payment"
	"github.com/groshare/groupbuy/internal/pubsub"
)

const (
	// Bound on acquiring the per-order critical section. A timed-out acquire
	// surfaces a retryable error instead of deadlocking.
	lockTimeout = 5 * time.Second
	// Bound on the persistence call inside the critical section.
	persistTimeout = 5 * time.Second
	// Bound on best-effort notification delivery.
	notifyTimeout = 10 * time.Second
)

// Deps wires the lifecycle service's collaborators. Repo, Locks and Publisher
// are required; the rest may be nil.
type Deps struct {
	Repo        store.Repository
	Locks       *lock.KeyedMutex
	Publisher   pubsub.Publisher
	Gateway     payment.Adapter
	Notifier    notification.Notifier
	Cache       *cache.OrderCache
	Idempotency *cache.Idempotency
	Log         *logrus.Logger
}

// Lifecycle is the core business-rule engine for group orders.
type Lifecycle struct {
	repo      store.Repository
	locks     *lock.KeyedMutex
	publisher pubsub.Publisher
	gateway   payment.Adapter
	notifier  notification.Notifier
	cache     *cache.OrderCache
	idem      *cache.Idempotency
	log       *logrus.Logger
	now       func() time.Time
}

func New(d Deps) *Lifecycle {
	if d.Log == nil {
		d.Log = logrus.New()
	}
	return &Lifecycle{
		repo:      d.Repo,
		locks:     d.Locks,
		publisher: d.Publisher,
		gateway:   d.Gateway,
		notifier:  d.Notifier,
		cache:     d.Cache,
		idem:      d.Idempotency,
		log:       d.Log,
		now:       time.Now,
	}
}

// CreateParams is the organizer's input for a new group order.
type CreateParams struct {
	ItemName         string         `json:"item_name"`
	Description      string         `json:"description"`
	Category         string         `json:"category"`
	Unit             string         `json:"unit"`
	Image            string         `json:"image"`
	TotalQuantity    float64        `json:"total_quantity"`
	MinimumThreshold float64        `json:"minimum_threshold"`
	PricePerUnit     float64        `json:"price_per_unit"`
	RetailPrice      *float64       `json:"retail_price"`
	Location         order.Location `json:"location"`
	Deadline         time.Time      `json:"deadline"`
	Notes            string         `json:"notes"`
	Tags             []string       `json:"tags"`
}

// UpdateParams carries the organizer-editable fields. Nil pointers leave the
// field unchanged.
type UpdateParams struct {
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Notes       *string    `json:"notes"`
	Tags        []string   `json:"tags"`
	Image       *string    `json:"image"`
}

// CreateOrder validates params, persists a fresh active order, and announces
// it on the global channel. The organizer is not seeded as a participant;
// they join through the same path as everyone else.
func (l *Lifecycle) CreateOrder(ctx context.Context, organizerID string, params CreateParams) (*order.Order, error) {
	if organizerID == "" {
		return nil, fmt.Errorf("%w: organizer is required", order.ErrValidation)
	}
	if params.ItemName == "" {
		return nil, fmt.Errorf("%w: item name is required", order.ErrValidation)
	}
	if params.TotalQuantity <= 0 {
		return nil, order.ErrInvalidTotal
	}
	if params.MinimumThreshold <= 0 || params.MinimumThreshold >= params.TotalQuantity {
		return nil, order.ErrInvalidThreshold
	}
	if params.PricePerUnit < 0 {
		return nil, order.ErrInvalidPrice
	}
	now := l.now()
	if !params.Deadline.After(now) {
		return nil, order.ErrPastDeadline
	}

	o := &order.Order{
		ID:               uuid.New().String(),
		Organizer:        organizerID,
		ItemName:         params.ItemName,
		Description:      params.Description,
		Category:         params.Category,
		Unit:             params.Unit,
		Image:            params.Image,
		TotalQuantity:    params.TotalQuantity,
		MinimumThreshold: params.MinimumThreshold,
		PricePerUnit:     params.PricePerUnit,
		RetailPrice:      params.RetailPrice,
		CurrentQuantity:  0,
		Status:           order.StatusActive,
		Participants:     []order.Participant{},
		Payments:         []order.PaymentRecord{},
		Location:         params.Location,
		Deadline:         params.Deadline,
		Notes:            params.Notes,
		Tags:             params.Tags,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	saved, err := l.repo.Save(ctx, o, 0)
	if err != nil {
		return nil, err
	}

	l.afterCommit(ctx, saved, pubsub.EventNewOrder)
	l.log.WithFields(logrus.Fields{
		"component": "lifecycle",
		"order_id":  saved.ID,
		"organizer": organizerID,
	}).Info("order created")
	return saved, nil
}

// Join commits a quantity for the user. Crossing the minimum threshold flips
// the order to locked within the same atomic unit as the quantity update, so
// the transition fires exactly once even under concurrent joins.
func (l *Lifecycle) Join(ctx context.Context, orderID, userID string, quantity float64) (*order.Order, error) {
	var locked bool
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.Status != order.StatusActive {
			return order.ErrOrderNotActive
		}
		if err := o.AddParticipant(userID, quantity, l.now()); err != nil {
			return err
		}
		if o.IsThresholdReached() {
			if err := o.Transition(order.StatusLocked); err != nil {
				return err
			}
			at := l.now()
			o.LockedAt = &at
			locked = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	events := []string{pubsub.EventOrderUpdated}
	if locked {
		events = append(events, pubsub.EventOrderLocked)
	}
	l.afterCommit(ctx, saved, events...)
	if locked {
		l.notifyLocked(ctx, saved)
	}
	return saved, nil
}

// Leave removes the user's commitment. If the departing user is the
// organizer, ownership transfers to the earliest remaining joiner; with
// nobody left the order is cancelled.
func (l *Lifecycle) Leave(ctx context.Context, orderID, userID string) (*order.Order, error) {
	var cancelled bool
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.Status != order.StatusActive {
			return order.ErrOrderNotActive
		}
		if _, err := o.RemoveParticipant(userID); err != nil {
			return err
		}
		if o.Organizer == userID {
			if len(o.Participants) > 0 {
				// Participants are kept in join order.
				o.Organizer = o.Participants[0].UserID
			} else if err := o.Transition(order.StatusCancelled); err != nil {
				return err
			} else {
				cancelled = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		l.afterCommit(ctx, saved, pubsub.EventOrderCancelled)
	} else {
		l.afterCommit(ctx, saved, pubsub.EventOrderUpdated)
	}
	return saved, nil
}

// Lock is the organizer's explicit active-to-locked transition, permitted
// once the minimum threshold is reached.
func (l *Lifecycle) Lock(ctx context.Context, orderID, actorID string) (*order.Order, error) {
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.Organizer != actorID {
			return order.ErrNotOrganizer
		}
		if o.Status != order.StatusActive {
			return o.Transition(order.StatusLocked) // yields the precise conflict
		}
		if !o.IsThresholdReached() {
			return order.ErrBelowThreshold
		}
		if err := o.Transition(order.StatusLocked); err != nil {
			return err
		}
		at := l.now()
		o.LockedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.afterCommit(ctx, saved, pubsub.EventOrderLocked)
	l.notifyLocked(ctx, saved)
	return saved, nil
}

// RecordPayment reconciles an asynchronous payment result into the aggregate.
// Once every participant has paid, a locked order moves to
// ready_for_delivery without any explicit call.
func (l *Lifecycle) RecordPayment(ctx context.Context, orderID, userID string, result payment.Result, method string) (*order.Order, error) {
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.IsTerminal() {
			return order.ErrOrderTerminal
		}
		status := order.PaymentPaid
		if !result.Success {
			status = order.PaymentFailed
		}
		if err := o.SetPaymentStatus(userID, status, method); err != nil {
			return err
		}
		p, _ := o.Participant(userID)
		o.RecordPayment(order.PaymentRecord{
			ID:            uuid.New().String(),
			UserID:        userID,
			Amount:        p.TotalPrice,
			Method:        method,
			TransactionID: result.TransactionID,
			Status:        status,
			RecordedAt:    l.now(),
		})
		if o.Status == order.StatusLocked && o.AllPaid() {
			if err := o.Transition(order.StatusReadyForDelivery); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The aggregate changed either way: a paymentStatus flip is visible
	// state, not just the optional transition.
	l.afterCommit(ctx, saved, pubsub.EventOrderUpdated, pubsub.EventPaymentCompleted)
	return saved, nil
}

// Complete finishes a locked or ready_for_delivery order with a delivery
// time. Organizer only.
func (l *Lifecycle) Complete(ctx context.Context, orderID, actorID string, deliveryTime time.Time) (*order.Order, error) {
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.Organizer != actorID {
			return order.ErrNotOrganizer
		}
		if deliveryTime.Before(l.now()) {
			return order.ErrPastDelivery
		}
		if err := o.Transition(order.StatusCompleted); err != nil {
			return err
		}
		at := l.now()
		o.CompletedAt = &at
		o.DeliveryTime = &deliveryTime
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.afterCommit(ctx, saved, pubsub.EventOrderCompleted)
	l.notifyCompleted(ctx, saved)
	return saved, nil
}

// Cancel withdraws an active order. Organizer only, and only while no other
// participants have committed. The aggregate is retained once any payment
// was recorded; otherwise it is removed.
func (l *Lifecycle) Cancel(ctx context.Context, orderID, actorID string) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	release, err := l.locks.Acquire(ctx, orderID)
	if err != nil {
		return err
	}

	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		release()
		return err
	}
	if o.Organizer != actorID {
		release()
		return order.ErrNotOrganizer
	}
	if o.Status != order.StatusActive {
		release()
		return order.ErrOrderNotActive
	}
	for i := range o.Participants {
		if o.Participants[i].UserID != actorID {
			release()
			return order.ErrHasParticipants
		}
	}

	snapshot := o.Clone()
	snapshot.Status = order.StatusCancelled

	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer pcancel()
	if o.HasCommittedFunds() {
		if err := o.Transition(order.StatusCancelled); err != nil {
			release()
			return err
		}
		o.UpdatedAt = l.now()
		if _, err := l.repo.Save(pctx, o, o.Version); err != nil {
			release()
			return err
		}
	} else if err := l.repo.Delete(pctx, orderID); err != nil {
		release()
		return err
	}
	release()

	l.cache.Invalidate(context.WithoutCancel(ctx), orderID)
	l.publish(snapshot, pubsub.EventOrderCancelled)
	l.log.WithFields(logrus.Fields{
		"component": "lifecycle",
		"order_id":  orderID,
	}).Info("order cancelled")
	return nil
}

// Update edits the organizer-editable fields of an active order.
func (l *Lifecycle) Update(ctx context.Context, orderID, actorID string, params UpdateParams) (*order.Order, error) {
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.Organizer != actorID {
			return order.ErrNotOrganizer
		}
		if o.Status != order.StatusActive {
			return order.ErrOrderNotActive
		}
		if params.Deadline != nil {
			if !params.Deadline.After(l.now()) {
				return order.ErrPastDeadline
			}
			o.Deadline = *params.Deadline
		}
		if params.Description != nil {
			o.Description = *params.Description
		}
		if params.Notes != nil {
			o.Notes = *params.Notes
		}
		if params.Image != nil {
			o.Image = *params.Image
		}
		if params.Tags != nil {
			o.Tags = params.Tags
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.afterCommit(ctx, saved, pubsub.EventOrderUpdated)
	return saved, nil
}

// Get returns the current snapshot of one order, preferring the cache.
func (l *Lifecycle) Get(ctx context.Context, orderID string) (*order.Order, error) {
	if o, ok := l.cache.Get(ctx, orderID); ok {
		return o, nil
	}
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.cache.Set(ctx, o)
	return o, nil
}

// List queries orders with filtering, sorting, and pagination.
func (l *Lifecycle) List(ctx context.Context, f store.Filter, s store.Sort, p store.Page) ([]*order.Order, int, error) {
	return l.repo.Query(ctx, f, s, p.Normalize())
}

// mutate runs the read-validate-mutate-persist span for one order under its
// per-order lock. External I/O never happens inside; publication and caching
// happen after the write commits. A caller disconnecting mid-flight cannot
// roll back a committed mutation.
func (l *Lifecycle) mutate(ctx context.Context, orderID string, fn func(o *order.Order) error) (*order.Order, error) {
	lctx, lcancel := context.WithTimeout(ctx, lockTimeout)
	defer lcancel()
	release, err := l.locks.Acquire(lctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	return l.apply(ctx, orderID, fn)
}

// tryMutate is mutate without blocking: a contended lock means the order is
// being mutated by live traffic right now, and the caller skips it instead of
// queueing. The second return value reports whether the lock was taken.
func (l *Lifecycle) tryMutate(ctx context.Context, orderID string, fn func(o *order.Order) error) (*order.Order, bool, error) {
	release, ok := l.locks.TryAcquire(orderID)
	if !ok {
		return nil, false, nil
	}
	defer release()

	saved, err := l.apply(ctx, orderID, fn)
	return saved, true, err
}

// apply is the span shared by mutate and tryMutate; the caller holds the
// order's lock.
func (l *Lifecycle) apply(ctx context.Context, orderID string, fn func(o *order.Order) error) (*order.Order, error) {
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	o.UpdatedAt = l.now()

	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer pcancel()
	saved, err := l.repo.Save(pctx, o, o.Version)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// afterCommit refreshes the cache and publishes the committed snapshot.
func (l *Lifecycle) afterCommit(ctx context.Context, o *order.Order, eventTypes ...string) {
	l.cache.Set(context.WithoutCancel(ctx), o)
	l.publish(o, eventTypes...)
}

func (l *Lifecycle) publish(o *order.Order, eventTypes ...string) {
	if l.publisher == nil {
		return
	}
	for _, t := range eventTypes {
		l.publisher.Publish(pubsub.Event{
			Type:    t,
			OrderID: o.ID,
			Order:   o.Clone(),
			At:      l.now(),
		})
	}
}

func (l *Lifecycle) notifyLocked(ctx context.Context, o *order.Order) {
	if l.notifier == nil {
		return
	}
	snapshot := o.Clone()
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		l.notifier.OrderLocked(nctx, snapshot)
	}()
}

func (l *Lifecycle) notifyCompleted(ctx context.Context, o *order.Order) {
	if l.notifier == nil {
		return
	}
	snapshot := o.Clone()
	go func() {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		l.notifier.OrderCompleted(nctx, snapshot)
	}()
}

// ExpireOverdue sweeps active orders past their deadline: threshold reached
// locks them, otherwise they are cancelled. Orders whose lock is contended
// are left for the next run. Run periodically.
func (l *Lifecycle) ExpireOverdue(ctx context.Context) error {
	overdue, _, err := l.repo.Query(ctx, store.Filter{Status: order.StatusActive}, store.Sort{Field: "deadline"}, store.Page{Number: 1, Limit: 100})
	if err != nil {
		return err
	}

	now := l.now()
	for _, candidate := range overdue {
		if candidate.Deadline.After(now) {
			break // sorted by deadline ascending
		}

		var event string
		saved, held, err := l.tryMutate(ctx, candidate.ID, func(o *order.Order) error {
			if o.Status != order.StatusActive || o.Deadline.After(l.now()) {
				return errSweepSkip
			}
			if o.IsThresholdReached() {
				if err := o.Transition(order.StatusLocked); err != nil {
					return err
				}
				at := l.now()
				o.LockedAt = &at
				event = pubsub.EventOrderLocked
				return nil
			}
			if err := o.Transition(order.StatusCancelled); err != nil {
				return err
			}
			event = pubsub.EventOrderCancelled
			return nil
		})
		if !held {
			// In use by a live operation; the next tick revisits.
			continue
		}
		if errors.Is(err, errSweepSkip) {
			continue
		}
		if err != nil {
			l.log.WithFields(logrus.Fields{
				"component": "lifecycle",
				"order_id":  candidate.ID,
			}).WithError(err).Warn("deadline sweep failed")
			continue
		}

		l.afterCommit(ctx, saved, event)
		if event == pubsub.EventOrderLocked {
			l.notifyLocked(ctx, saved)
		}
	}
	return nil
}

// errSweepSkip aborts a sweep mutation that raced with a regular operation.
var errSweepSkip = errors.New("sweep: order no longer eligible")
