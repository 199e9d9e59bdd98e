package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBkashDetails() Details {
	return Details{MobileNumber: "01712345678", TransactionID: "BKA123456"}
}

// ============================================
// ProcessPayment Tests
// ============================================

func TestSimulatedGateway_Process_Success(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	result, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 300, MethodBkash, validBkashDetails())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, strings.HasPrefix(result.TransactionID, "TXN_"))
}

func TestSimulatedGateway_Process_AlwaysFails(t *testing.T) {
	g := NewSimulatedGateway(0.0, 1.0)

	result, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 300, MethodBkash, validBkashDetails())

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, result.TransactionID)
}

func TestSimulatedGateway_Process_CashNeedsNoDetails(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	result, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 100, MethodCash, Details{})

	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestSimulatedGateway_Process_MobileMethodsRequireDetails(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	for _, method := range []string{MethodBkash, MethodNagad} {
		_, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 100, method, Details{})
		assert.ErrorIs(t, err, ErrInvalidMethod, method)
	}
}

func TestSimulatedGateway_Process_InvalidMobileNumber(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	for _, number := range []string{"12345", "02712345678", "017123456", "abcdefghijk"} {
		_, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 100, MethodBkash,
			Details{MobileNumber: number, TransactionID: "TX1"})
		assert.ErrorIs(t, err, ErrInvalidMethod, number)
	}
}

func TestSimulatedGateway_Process_AcceptsPrefixedNumbers(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	for _, number := range []string{"01712345678", "8801712345678", "+8801712345678", "1712345678"} {
		_, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 100, MethodNagad,
			Details{MobileNumber: number, TransactionID: "TX1"})
		assert.NoError(t, err, number)
	}
}

func TestSimulatedGateway_Process_UnknownMethod(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	_, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 100, "paypal", Details{})

	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestSimulatedGateway_Process_NonPositiveAmount(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	_, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 0, MethodCash, Details{})

	assert.ErrorIs(t, err, ErrInvalidMethod)
}

// ============================================
// VerifyPayment Tests
// ============================================

func TestSimulatedGateway_Verify_Success(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	v, err := g.VerifyPayment(context.Background(), "TXN_123", MethodBkash)

	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Equal(t, "TXN_123", v.TransactionID)
	assert.Equal(t, MethodBkash, v.Method)
}

func TestSimulatedGateway_Verify_CashRejected(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	_, err := g.VerifyPayment(context.Background(), "TXN_123", MethodCash)

	assert.ErrorIs(t, err, ErrInvalidMethod)
}

func TestSimulatedGateway_Verify_MissingTransactionID(t *testing.T) {
	g := NewSimulatedGateway(1.0, 1.0)

	_, err := g.VerifyPayment(context.Background(), "", MethodNagad)

	assert.ErrorIs(t, err, ErrInvalidMethod)
}

// ============================================
// Determinism
// ============================================

func TestSimulatedGateway_SeededOutcomesRepeat(t *testing.T) {
	run := func() []bool {
		g := NewSimulatedGateway(0.5, 0.5)
		g.Seed(42)
		var outcomes []bool
		for i := 0; i < 20; i++ {
			result, err := g.ProcessPayment(context.Background(), "order-1", "user-1", 100, MethodCash, Details{})
			require.NoError(t, err)
			outcomes = append(outcomes, result.Success)
		}
		return outcomes
	}

	assert.Equal(t, run(), run())
}

func TestMethods_ListsAllSupported(t *testing.T) {
	methods := Methods()

	require.Len(t, methods, 3)
	ids := []string{methods[0].ID, methods[1].ID, methods[2].ID}
	assert.ElementsMatch(t, []string{MethodBkash, MethodNagad, MethodCash}, ids)
	for _, m := range methods {
		assert.True(t, m.Supported)
	}
}
