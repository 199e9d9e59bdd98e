package store

import (
	"context"
	"fmt"

	"github.com/groshare/groupbuy/internal/domain/order"
)

// ErrVersionConflict is returned by Save when the stored version no longer
// matches the caller's expected version (a lost update was prevented).
var ErrVersionConflict = fmt.Errorf("%w: order version changed", order.ErrConcurrency)

// ErrNotFound is returned when no order exists for the requested id.
var ErrNotFound = order.ErrNotFound

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Status   order.Status
	Category string
	City     string
	Area     string
	// UserID matches orders the user organizes or participates in.
	UserID string
}

// Sort orders Query results by a whitelisted field.
type Sort struct {
	Field      string // created_at | deadline | current_quantity | price_per_unit
	Descending bool
}

// Page selects a slice of the result set. Page numbers start at 1.
type Page struct {
	Number int
	Limit  int
}

// Repository is the durable storage contract for the Order aggregate.
// Save performs an optimistic-concurrency check: it succeeds only when the
// stored version equals expectedVersion, and persists the order with
// expectedVersion+1. expectedVersion 0 means "create, must not exist".
type Repository interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	Save(ctx context.Context, o *order.Order, expectedVersion int) (*order.Order, error)
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, f Filter, s Sort, p Page) ([]*order.Order, int, error)
}

// Matches reports whether the order satisfies the filter. Shared by the
// in-memory repository and tests.
func (f Filter) Matches(o *order.Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Category != "" && o.Category != f.Category {
		return false
	}
	if f.City != "" && o.Location.City != f.City {
		return false
	}
	if f.Area != "" && o.Location.Area != f.Area {
		return false
	}
	if f.UserID != "" {
		if o.Organizer != f.UserID {
			if _, ok := o.Participant(f.UserID); !ok {
				return false
			}
		}
	}
	return true
}

// Normalize clamps page parameters to sane defaults.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = 10
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	return p
}
