package models

import "time"

// Payment statuses as stored in the payments table.
const (
	PaymentStatusPending = "Pending"
	PaymentStatusPaid    = "Paid"
	PaymentStatusFailed  = "Failed"
)

// Payment represents a row in the payments table.
//
// MpesaCode is overloaded the way the provider's flow forces it to be: while the
// payment is Pending it holds the checkout request ID returned by the STK push,
// and on confirmation it is overwritten with the customer-facing receipt code.
// Callback matching must therefore look at the value before overwriting it.
type Payment struct {
	ID          int64      `json:"id,omitempty"`
	SessionID   string     `json:"session_id"`
	PhoneNumber string     `json:"phone_number"` // E.164 without the plus
	MpesaCode   *string    `json:"mpesa_code,omitempty"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   *time.Time `json:"created_at,omitempty"` // Nullable TIMESTAMPTZ
}
