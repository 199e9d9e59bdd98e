package payment

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

// Bangladeshi mobile number, with or without country prefix.
var mobilePattern = regexp.MustCompile(`^(\+880|880|0)?1[3-9]\d{8}$`)

// SimulatedGateway emulates a mobile-money gateway for development and tests.
// Success is random with a configurable rate; a rate of 1.0 makes the gateway
// deterministic.
type SimulatedGateway struct {
	successRate float64
	verifyRate  float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedGateway(successRate, verifyRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		successRate: successRate,
		verifyRate:  verifyRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes outcomes reproducible in tests.
func (g *SimulatedGateway) Seed(seed int64) {
	g.mu.Lock()
	g.rng = rand.New(rand.NewSource(seed))
	g.mu.Unlock()
}

func (g *SimulatedGateway) ProcessPayment(ctx context.Context, orderID, userID string, amount float64, method string, details Details) (Result, error) {
	if err := validateDetails(method, details); err != nil {
		return Result{}, err
	}
	if amount <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidMethod)
	}

	if !g.roll(g.successRate) {
		return Result{Success: false, Reason: "payment processing failed, please try again"}, nil
	}

	g.mu.Lock()
	suffix := g.rng.Int63n(1_000_000_000)
	g.mu.Unlock()
	return Result{
		Success:       true,
		TransactionID: fmt.Sprintf("TXN_%d_%09d", time.Now().UnixMilli(), suffix),
	}, nil
}

func (g *SimulatedGateway) VerifyPayment(ctx context.Context, transactionID, method string) (Verification, error) {
	if method != MethodBkash && method != MethodNagad {
		return Verification{}, fmt.Errorf("%w: %s cannot be verified", ErrInvalidMethod, method)
	}
	if transactionID == "" {
		return Verification{}, fmt.Errorf("%w: transaction id is required", ErrInvalidMethod)
	}
	return Verification{
		Verified:      g.roll(g.verifyRate),
		TransactionID: transactionID,
		Method:        method,
	}, nil
}

func (g *SimulatedGateway) roll(rate float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < rate
}

func validateDetails(method string, details Details) error {
	switch method {
	case MethodBkash, MethodNagad:
		if details.MobileNumber == "" || details.TransactionID == "" {
			return fmt.Errorf("%w: %s requires mobile number and transaction id", ErrInvalidMethod, method)
		}
		if !mobilePattern.MatchString(details.MobileNumber) {
			return fmt.Errorf("%w: invalid %s mobile number", ErrInvalidMethod, method)
		}
		return nil
	case MethodCash:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
}
