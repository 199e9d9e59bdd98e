// Package payment defines the abstract contract with the payment gateway.
// The wire protocol of any concrete gateway is out of scope; the lifecycle
// engine only depends on this interface.
package payment

import (
	"context"
	"errors"
)

// Supported methods.
const (
	MethodBkash = "bkash"
	MethodNagad = "nagad"
	MethodCash  = "cash"
)

var ErrInvalidMethod = errors.New("invalid payment method")

// Details carries method-specific fields supplied by the payer.
type Details struct {
	MobileNumber  string `json:"mobile_number,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Result is the gateway's answer to a processing request.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Verification is the gateway's answer to a verification request.
type Verification struct {
	Verified      bool   `json:"verified"`
	TransactionID string `json:"transaction_id"`
	Method        string `json:"method"`
}

// Adapter processes and verifies payments. Implementations may be slow; the
// lifecycle service never calls them while holding a per-order lock.
type Adapter interface {
	ProcessPayment(ctx context.Context, orderID, userID string, amount float64, method string, details Details) (Result, error)
	VerifyPayment(ctx context.Context, transactionID, method string) (Verification, error)
}

// Method describes one selectable payment method.
type Method struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Supported   bool   `json:"supported"`
}

// Methods lists the payment methods the engine accepts.
func Methods() []Method {
	return []Method{
		{ID: MethodBkash, Name: "bKash", Description: "Mobile financial service by bKash", Supported: true},
		{ID: MethodNagad, Name: "Nagad", Description: "Digital financial service by Nagad", Supported: true},
		{ID: MethodCash, Name: "Cash on Delivery", Description: "Pay when you receive your order", Supported: true},
	}
}
