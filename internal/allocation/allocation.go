// Package allocation defines the value objects an itemized receipt is built
// from: line items, participant assignments, extras (tax, tip, fees,
// discounts) and the allocation rule that controls how they are distributed.
// All values are immutable records; computation lives in internal/calculator.
package allocation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/rounding"
)

var (
	// ErrNoUsers is returned when an assignment names no participants.
	ErrNoUsers = errors.New("assignment must name at least one participant")
	// ErrNegativeShare is returned when a custom share is below zero.
	ErrNegativeShare = errors.New("custom shares cannot be negative")
	// ErrSharesDoNotSumToOne is returned when custom shares fail the
	// sum-to-1 tolerance check.
	ErrSharesDoNotSumToOne = errors.New("custom shares must sum to 1.0")
	// ErrShareUserMismatch is returned when the share map's key set differs
	// from the assignment's user list.
	ErrShareUserMismatch = errors.New("share map must cover exactly the assigned users")
)

// shareTolerance is how far custom shares may stray from summing to 1.0.
var shareTolerance = decimal.RequireFromString("0.0001")

// AssignmentKind tags how an item's total is divided among its users.
type AssignmentKind string

const (
	// AssignEven divides the item total equally among the assigned users.
	AssignEven AssignmentKind = "even"
	// AssignCustom divides the item total by explicit proportional shares.
	AssignCustom AssignmentKind = "custom"
)

// ItemAssignment names who shares a line item and in what proportion.
type ItemAssignment struct {
	Kind   AssignmentKind
	Users  []string
	Shares map[string]decimal.Decimal // custom only; proportions summing to 1
}

// EvenAssignment builds an even split across users, preserving order.
func EvenAssignment(users ...string) ItemAssignment {
	return ItemAssignment{Kind: AssignEven, Users: users}
}

// CustomAssignment builds a proportional split. users fixes the iteration
// order; shares maps each user to their proportion of the item.
func CustomAssignment(users []string, shares map[string]decimal.Decimal) ItemAssignment {
	return ItemAssignment{Kind: AssignCustom, Users: users, Shares: shares}
}

// Validate checks the assignment invariants. For custom assignments the
// shares must be non-negative, sum to 1.0 within tolerance, and cover exactly
// the assigned users.
func (a ItemAssignment) Validate() error {
	if len(a.Users) == 0 {
		return ErrNoUsers
	}
	if a.Kind != AssignCustom {
		return nil
	}
	if len(a.Shares) != len(a.Users) {
		return ErrShareUserMismatch
	}
	sum := decimal.Zero
	for _, user := range a.Users {
		share, ok := a.Shares[user]
		if !ok {
			return fmt.Errorf("%w: no share for %q", ErrShareUserMismatch, user)
		}
		if share.Sign() < 0 {
			return fmt.Errorf("%w: %q has share %s", ErrNegativeShare, user, share)
		}
		sum = sum.Add(share)
	}
	if sum.Sub(decimal.New(1, 0)).Abs().GreaterThan(shareTolerance) {
		return fmt.Errorf("%w: got %s", ErrSharesDoNotSumToOne, sum)
	}
	return nil
}

// ShareOf returns the user's proportion of the item: 1/n for even splits,
// the explicit share for custom ones. Zero if the user is not assigned.
func (a ItemAssignment) ShareOf(user string) decimal.Decimal {
	switch a.Kind {
	case AssignCustom:
		return a.Shares[user]
	default:
		for _, u := range a.Users {
			if u == user {
				return decimal.New(1, 0).DivRound(decimal.NewFromInt(int64(len(a.Users))), 28)
			}
		}
		return decimal.Zero
	}
}

// LineItem is one receipt line. ItemTotal is Quantity * UnitPrice.
type LineItem struct {
	ID                string
	Name              string
	Quantity          decimal.Decimal
	UnitPrice         decimal.Decimal
	Taxable           bool
	ServiceChargeable bool
	Assignment        ItemAssignment
}

// Total returns Quantity * UnitPrice.
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// ExtraKind tags whether an extra is a percentage of some base or an
// absolute amount.
type ExtraKind string

const (
	Percent  ExtraKind = "percent"
	Absolute ExtraKind = "absolute"
)

// PercentBase selects which subtotal a percent extra is computed against.
type PercentBase string

const (
	// BaseItemSubtotal is the pre-tax, pre-discount sum of item shares.
	BaseItemSubtotal PercentBase = "item_subtotal"
	// BaseTaxableItems is the subtotal of taxable items only.
	BaseTaxableItems PercentBase = "taxable_items"
	// BaseServiceableItems is the subtotal of service-chargeable items only.
	BaseServiceableItems PercentBase = "serviceable_items"
	// BasePostDiscount is the item subtotal after discounts.
	BasePostDiscount PercentBase = "post_discount"
	// BasePostTax is the post-discount subtotal plus tax.
	BasePostTax PercentBase = "post_tax"
	// BasePostFees is the post-tax subtotal plus fees.
	BasePostFees PercentBase = "post_fees"
)

// Extra is one tax, tip, fee or discount. For Percent kinds, Value is the
// percentage (10 means 10%) and Base the subtotal it applies to. For Absolute
// kinds, Value is the amount and Base is ignored.
type Extra struct {
	Name  string
	Kind  ExtraKind
	Value decimal.Decimal
	Base  PercentBase
}

// Extras carries all the non-item charges of a receipt. Any field may be
// absent.
type Extras struct {
	Tax       *Extra
	Tip       *Extra
	Fees      []Extra
	Discounts []Extra
}

// AbsoluteSplitMode selects how an absolute extra is divided among
// participants.
type AbsoluteSplitMode string

const (
	// SplitProportional divides an absolute extra in proportion to each
	// participant's item subtotal.
	SplitProportional AbsoluteSplitMode = "proportional"
	// SplitEven divides an absolute extra equally among all participants.
	SplitEven AbsoluteSplitMode = "even"
)

// RoundingConfig controls the final rounding pass of an itemized allocation.
type RoundingConfig struct {
	Step            decimal.Decimal // e.g. 0.01 or 1
	Mode            rounding.Mode
	RemainderPolicy rounding.RemainderPolicy
}

// Rule is the allocation policy for a receipt.
type Rule struct {
	AbsoluteSplitMode AbsoluteSplitMode
	Rounding          RoundingConfig
}

// DefaultRule returns the rule used when a receipt specifies none:
// proportional absolute splits, half-up rounding to the currency step, and
// the largest share absorbing the remainder.
func DefaultRule(step decimal.Decimal) Rule {
	return Rule{
		AbsoluteSplitMode: SplitProportional,
		Rounding: RoundingConfig{
			Step:            step,
			Mode:            rounding.RoundHalfUp,
			RemainderPolicy: rounding.LargestShare,
		},
	}
}

// ItemContribution records one participant's slice of one line item, for the
// audit trail.
type ItemContribution struct {
	ItemID        string
	ItemName      string
	Quantity      decimal.Decimal
	UnitPrice     decimal.Decimal
	AssignedShare decimal.Decimal
	Amount        decimal.Decimal
}

// ExtraAllocation records how much of one extra landed on a participant.
type ExtraAllocation struct {
	Name   string
	Amount decimal.Decimal
}

// ParticipantBreakdown is the per-user audit record of an itemized
// allocation.
type ParticipantBreakdown struct {
	UserID             string
	ItemsSubtotal      decimal.Decimal
	Discounts          decimal.Decimal
	Tax                decimal.Decimal
	Fees               decimal.Decimal
	Tip                decimal.Decimal
	RoundingAdjustment decimal.Decimal
	Total              decimal.Decimal
	Items              []ItemContribution
	Extras             []ExtraAllocation
}
