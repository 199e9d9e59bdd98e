package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/domain/order"
	"github.com/groshare/groupbuy/internal/payment"
	"github.com/groshare/groupbuy/internal/pubsub"
)

// ErrDuplicatePayment guards against double submission of the same payment.
var ErrDuplicatePayment = fmt.Errorf("%w: payment already in progress for this order", order.ErrConflict)

// ErrPaymentDeclined is returned when the gateway rejects the payment. The
// order is left untouched.
var ErrPaymentDeclined = fmt.Errorf("%w: payment declined", order.ErrConflict)

// ProcessPayment is the pay-to-join flow: validate, charge through the
// gateway, then commit the participant with paymentStatus paid in one atomic
// unit. The gateway is never called while holding the per-order lock.
func (l *Lifecycle) ProcessPayment(ctx context.Context, orderID, userID string, quantity float64, method string, details payment.Details) (payment.Result, *order.Order, error) {
	// Pure validation against a fresh snapshot, before any exclusivity.
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return payment.Result{}, nil, err
	}
	if o.Status != order.StatusActive {
		return payment.Result{}, nil, order.ErrOrderNotActive
	}
	if _, joined := o.Participant(userID); joined {
		return payment.Result{}, nil, order.ErrAlreadyJoined
	}
	if quantity <= 0 {
		return payment.Result{}, nil, order.ErrInvalidQuantity
	}
	if o.CurrentQuantity+quantity > o.TotalQuantity {
		return payment.Result{}, nil, fmt.Errorf("%w: only %g %s remaining", order.ErrQuantityExceeds, o.RemainingQuantity(), o.Unit)
	}

	reserved, err := l.idem.ReservePayment(ctx, orderID, userID)
	if err != nil {
		return payment.Result{}, nil, fmt.Errorf("idempotency check: %w", err)
	}
	if !reserved {
		return payment.Result{}, nil, ErrDuplicatePayment
	}

	amount := quantity * o.PricePerUnit
	result, err := l.gateway.ProcessPayment(ctx, orderID, userID, amount, method, details)
	if err != nil {
		l.idem.ReleasePayment(context.WithoutCancel(ctx), orderID, userID)
		return payment.Result{}, nil, fmt.Errorf("%w: %s", order.ErrValidation, err)
	}
	if !result.Success {
		l.idem.ReleasePayment(context.WithoutCancel(ctx), orderID, userID)
		return result, nil, ErrPaymentDeclined
	}

	var locked bool
	saved, err := l.mutate(ctx, orderID, func(o *order.Order) error {
		if o.Status != order.StatusActive {
			return order.ErrOrderNotActive
		}
		if err := o.AddParticipant(userID, quantity, l.now()); err != nil {
			return err
		}
		if err := o.SetPaymentStatus(userID, order.PaymentPaid, method); err != nil {
			return err
		}
		p, _ := o.Participant(userID)
		o.RecordPayment(order.PaymentRecord{
			ID:            uuid.New().String(),
			UserID:        userID,
			Amount:        p.TotalPrice,
			Method:        method,
			TransactionID: result.TransactionID,
			Status:        order.PaymentPaid,
			RecordedAt:    l.now(),
		})
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
		// The charge went through but the join lost the race. The payment
		// record has nowhere to land; flag it for manual reconciliation.
		l.idem.ReleasePayment(context.WithoutCancel(ctx), orderID, userID)
		l.log.WithFields(logrus.Fields{
			"component":      "lifecycle",
			"order_id":       orderID,
			"user_id":        userID,
			"transaction_id": result.TransactionID,
		}).WithError(err).Error("payment captured but join failed, refund required")
		return result, nil, err
	}

	events := []string{pubsub.EventOrderUpdated, pubsub.EventPaymentCompleted}
	if locked {
		events = append(events, pubsub.EventOrderLocked)
	}
	l.afterCommit(ctx, saved, events...)
	if locked {
		l.notifyLocked(ctx, saved)
	}
	return result, saved, nil
}

// VerifyPayment relays a verification request to the gateway.
func (l *Lifecycle) VerifyPayment(ctx context.Context, transactionID, method string) (payment.Verification, error) {
	return l.gateway.VerifyPayment(ctx, transactionID, method)
}

// Participation returns the caller's participant entry for an order.
func (l *Lifecycle) Participation(ctx context.Context, orderID, userID string) (*order.Order, order.Participant, error) {
	o, err := l.Get(ctx, orderID)
	if err != nil {
		return nil, order.Participant{}, err
	}
	p, ok := o.Participant(userID)
	if !ok {
		return nil, order.Participant{}, order.ErrNotParticipant
	}
	return o, *p, nil
}
