package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/allocation"
)

var (
	// ErrNoParticipants is returned when a split names no participants.
	ErrNoParticipants = errors.New("split must have at least one participant")
	// ErrZeroWeights is returned when a weighted split's weights sum to zero.
	ErrZeroWeights = errors.New("weighted split weights must sum to a positive value")
)

// SplitType identifies the strategy used to divide an expense.
type SplitType string

const (
	SplitEqual    SplitType = "equal"
	SplitWeighted SplitType = "weighted"
	SplitItemized SplitType = "itemized"
)

// shareScale is the scale for intermediate share divisions.
const shareScale = 28

// Split is the sum type of expense split strategies. Itemized-specific data
// (the canonical participant amounts) is only reachable through the
// ItemizedSplit variant.
type Split interface {
	// Type identifies the variant.
	Type() SplitType

	// Participants returns the participant ids in their defined order.
	Participants() []string

	// Shares divides total across the participants and returns each user's
	// raw (unrounded) share. The shares sum exactly to total for equal and
	// weighted splits up to division scale; itemized splits return their
	// stored amounts verbatim.
	Shares(total decimal.Decimal) (map[string]decimal.Decimal, error)
}

// EqualSplit divides an expense equally among its users.
type EqualSplit struct {
	Users []string
}

func (s EqualSplit) Type() SplitType        { return SplitEqual }
func (s EqualSplit) Participants() []string { return s.Users }

func (s EqualSplit) Shares(total decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(s.Users) == 0 {
		return nil, ErrNoParticipants
	}
	per := total.DivRound(decimal.NewFromInt(int64(len(s.Users))), shareScale)
	shares := make(map[string]decimal.Decimal, len(s.Users))
	for _, u := range s.Users {
		shares[u] = per
	}
	return shares, nil
}

// WeightedSplit divides an expense proportionally to per-user weights.
type WeightedSplit struct {
	Users   []string
	Weights map[string]decimal.Decimal
}

func (s WeightedSplit) Type() SplitType        { return SplitWeighted }
func (s WeightedSplit) Participants() []string { return s.Users }

func (s WeightedSplit) Shares(total decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(s.Users) == 0 {
		return nil, ErrNoParticipants
	}
	sum := decimal.Zero
	for _, u := range s.Users {
		sum = sum.Add(s.Weights[u])
	}
	if sum.Sign() <= 0 {
		return nil, ErrZeroWeights
	}
	shares := make(map[string]decimal.Decimal, len(s.Users))
	for _, u := range s.Users {
		shares[u] = total.Mul(s.Weights[u]).DivRound(sum, shareScale)
	}
	return shares, nil
}

// ItemizedSplit carries the canonical per-participant amounts produced by the
// itemized calculator. The settlement stage treats them as ground truth and
// never recomputes them.
type ItemizedSplit struct {
	Users              []string
	ParticipantAmounts map[string]decimal.Decimal
}

func (s ItemizedSplit) Type() SplitType        { return SplitItemized }
func (s ItemizedSplit) Participants() []string { return s.Users }

func (s ItemizedSplit) Shares(total decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(s.Users) == 0 {
		return nil, ErrNoParticipants
	}
	shares := make(map[string]decimal.Decimal, len(s.ParticipantAmounts))
	for u, amt := range s.ParticipantAmounts {
		shares[u] = amt
	}
	return shares, nil
}

// Expense is one shared expense in a trip. For itemized expenses the receipt
// detail (Items, Extras, Rule) is retained for the audit trail; the Split
// holds the canonical amounts.
type Expense struct {
	ID          string
	TripID      string
	PayerID     string
	Description string
	CategoryID  string
	Currency    string
	Amount      decimal.Decimal
	Split       Split

	// Itemized receipt detail, nil for equal/weighted expenses.
	Items  []allocation.LineItem
	Extras *allocation.Extras
	Rule   *allocation.Rule

	// CreatedAt is the Unix timestamp when the expense was recorded.
	CreatedAt int64
}

// Validate checks structural invariants common to every split type: a payer,
// a positive amount, and a split.
func (e *Expense) Validate() error {
	if e.PayerID == "" {
		return errors.New("expense must have a payer")
	}
	if e.Split == nil {
		return errors.New("expense must have a split")
	}
	if len(e.Split.Participants()) == 0 {
		return ErrNoParticipants
	}
	if e.Amount.Sign() < 0 {
		return fmt.Errorf("expense amount cannot be negative, got %s", e.Amount)
	}
	return nil
}
