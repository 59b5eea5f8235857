package models

import "github.com/shopspring/decimal"

// PairwiseDebt is the netted amount one participant owes another across all
// of a trip's expenses. It is directional and always positive.
type PairwiseDebt struct {
	FromUserID string
	ToUserID   string
	Amount     decimal.Decimal
	ComputedAt int64
}

// MinimalTransfer is a concrete payment instruction that settles outstanding
// balances. IsSettled/SettledAt are the only fields mutated after creation,
// and only by the persistence layer.
type MinimalTransfer struct {
	// ID is the unique identifier for the transfer (UUID format).
	ID string

	// TripID is the trip this transfer belongs to.
	TripID string

	// FromUserID is the user who owes (debtor settling up).
	FromUserID string

	// ToUserID is the user who is owed (creditor being paid).
	ToUserID string

	// Amount is the payment amount, always positive, rounded to the
	// currency's smallest unit.
	Amount decimal.Decimal

	// Currency is the trip's base currency code.
	Currency string

	// ComputedAt is the Unix timestamp when the transfer was computed.
	ComputedAt int64

	// IsSettled marks whether the payment has been made.
	IsSettled bool

	// SettledAt is the Unix timestamp of settlement, zero while unsettled.
	SettledAt int64
}

// Payment records a manual payment between participants, made outside any
// computed transfer. Payments reduce outstanding balances in the aggregation.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// TripID is the trip this payment belongs to.
	TripID string

	// FromUserID is the user who paid (debtor settling up).
	FromUserID string

	// ToUserID is the user who received payment (creditor being paid).
	ToUserID string

	// Amount is the payment amount.
	Amount decimal.Decimal

	// Currency is the trip's base currency code.
	Currency string

	// CreatedAt is the Unix timestamp when the payment was recorded.
	CreatedAt int64

	// Note is an optional description for the payment.
	Note string
}
