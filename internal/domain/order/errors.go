package order

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of these so the transport
// layer can map kinds to responses with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrConflict      = errors.New("conflict")
	ErrConcurrency   = errors.New("concurrent modification")
	ErrAuthorization = errors.New("not authorized")
	ErrNotFound      = errors.New("order not found")
)

var (
	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrInvalidThreshold = fmt.Errorf("%w: minimum threshold must be positive and below total quantity", ErrValidation)
	ErrInvalidTotal     = fmt.Errorf("%w: total quantity must be positive", ErrValidation)
	ErrInvalidPrice     = fmt.Errorf("%w: price per unit cannot be negative", ErrValidation)
	ErrPastDeadline     = fmt.Errorf("%w: deadline must be in the future", ErrValidation)
	ErrPastDelivery     = fmt.Errorf("%w: delivery time cannot be in the past", ErrValidation)

	ErrOrderNotActive  = fmt.Errorf("%w: order is not active", ErrConflict)
	ErrOrderTerminal   = fmt.Errorf("%w: order is completed or cancelled", ErrConflict)
	ErrAlreadyLocked   = fmt.Errorf("%w: order is already locked", ErrConflict)
	ErrAlreadyJoined   = fmt.Errorf("%w: user already joined this order", ErrConflict)
	ErrNotParticipant  = fmt.Errorf("%w: user is not a participant in this order", ErrConflict)
	ErrQuantityExceeds = fmt.Errorf("%w: requested quantity not available", ErrConflict)
	ErrBelowThreshold  = fmt.Errorf("%w: minimum threshold not reached", ErrConflict)
	ErrHasParticipants = fmt.Errorf("%w: order has other participants", ErrConflict)

	ErrNotOrganizer = fmt.Errorf("%w: only the organizer may perform this action", ErrAuthorization)
)
