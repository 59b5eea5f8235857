package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/allocation"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/rounding"
)

// defaultExtremePercent is the sanity threshold above which a tax or tip
// percentage draws a warning.
var defaultExtremePercent = decimal.NewFromInt(50)

var hundred = decimal.NewFromInt(100)

// ItemizedInput is everything needed to allocate one itemized receipt.
// Participants fixes the iteration order, which drives the FirstListed
// remainder policy and all tie-breaking.
type ItemizedInput struct {
	Items        []allocation.LineItem
	Extras       allocation.Extras
	Rule         allocation.Rule
	Participants []string
	PayerID      string
	Currency     string

	// ExtremePercentThreshold overrides the warning threshold for percent
	// extras; zero means the default of 50.
	ExtremePercentThreshold decimal.Decimal
}

// ItemizedResult is the output of an itemized allocation. When Issues
// contains a blocking entry, ParticipantAmounts and Breakdown are nil and the
// result must not be persisted.
type ItemizedResult struct {
	ParticipantAmounts map[string]decimal.Decimal
	Breakdown          map[string]*allocation.ParticipantBreakdown
	GrandTotal         decimal.Decimal
	Issues             []Issue
}

// Blocked reports whether the result carries a blocking issue.
func (r *ItemizedResult) Blocked() bool { return HasBlocking(r.Issues) }

// participantState is the mutable accumulator for one participant while the
// pipeline runs. It is finalized into a ParticipantBreakdown exactly once.
type participantState struct {
	itemSubtotal        decimal.Decimal
	taxableSubtotal     decimal.Decimal
	serviceableSubtotal decimal.Decimal
	discounts           decimal.Decimal
	tax                 decimal.Decimal
	fees                decimal.Decimal
	tip                 decimal.Decimal
	contributions       []allocation.ItemContribution
	extras              []allocation.ExtraAllocation
}

// CalculateItemized distributes a receipt's line items and extras across
// participants. The pipeline order is fixed: items, discounts, tax, fees,
// tip, rounding, remainder, validation. Changing the order would change the
// bases percent extras are computed against.
//
// The function is pure and deterministic: identical inputs (including
// participant order) produce bit-identical outputs.
func CalculateItemized(in ItemizedInput) *ItemizedResult {
	res := &ItemizedResult{}

	if len(in.Participants) == 0 {
		res.Issues = append(res.Issues, blocking(IssueUnassignedItem, "receipt has no participants"))
		return res
	}

	// Input validation first: a receipt with a broken assignment must not
	// produce usable amounts.
	for _, item := range in.Items {
		if len(item.Assignment.Users) == 0 {
			res.Issues = append(res.Issues, blocking(IssueUnassignedItem,
				"item %q has no assigned participants", item.Name))
			continue
		}
		if err := item.Assignment.Validate(); err != nil {
			res.Issues = append(res.Issues, blocking(IssueSharesDoNotSumToOne,
				"item %q: %v", item.Name, err))
		}
	}
	if res.Blocked() {
		return res
	}

	states := make(map[string]*participantState, len(in.Participants))
	for _, p := range in.Participants {
		states[p] = &participantState{}
	}

	// Step 1: distribute each item's total across its assigned users.
	for _, item := range in.Items {
		itemTotal := item.Total()
		for _, user := range item.Assignment.Users {
			st, ok := states[user]
			if !ok {
				// Assigned users outside the participant list still get a
				// state; they consumed part of the receipt.
				st = &participantState{}
				states[user] = st
				in.Participants = append(in.Participants, user)
			}
			share := item.Assignment.ShareOf(user)
			amount := itemTotal.Mul(share)
			st.itemSubtotal = st.itemSubtotal.Add(amount)
			if item.Taxable {
				st.taxableSubtotal = st.taxableSubtotal.Add(amount)
			}
			if item.ServiceChargeable {
				st.serviceableSubtotal = st.serviceableSubtotal.Add(amount)
			}
			st.contributions = append(st.contributions, allocation.ItemContribution{
				ItemID:        item.ID,
				ItemName:      item.Name,
				Quantity:      item.Quantity,
				UnitPrice:     item.UnitPrice,
				AssignedShare: share,
				Amount:        amount,
			})
		}
	}

	threshold := in.ExtremePercentThreshold
	if threshold.IsZero() {
		threshold = defaultExtremePercent
	}

	// Step 2: discounts reduce subtotals before tax.
	for _, d := range in.Extras.Discounts {
		perUser := applyExtra(d, in, states)
		for user, amount := range perUser {
			st := states[user]
			st.discounts = st.discounts.Add(amount)
			st.extras = append(st.extras, allocation.ExtraAllocation{Name: extraName(d, "discount"), Amount: amount.Neg()})
		}
	}

	// Step 3: tax.
	if t := in.Extras.Tax; t != nil {
		if t.Kind == allocation.Percent && t.Value.GreaterThan(threshold) {
			res.Issues = append(res.Issues, warning(IssueExtremePercentage,
				"tax of %s%% exceeds %s%%", t.Value, threshold))
		}
		perUser := applyExtra(*t, in, states)
		for user, amount := range perUser {
			st := states[user]
			st.tax = st.tax.Add(amount)
			st.extras = append(st.extras, allocation.ExtraAllocation{Name: extraName(*t, "tax"), Amount: amount})
		}
	}

	// Step 4: fees, each against its own base.
	for _, f := range in.Extras.Fees {
		perUser := applyExtra(f, in, states)
		for user, amount := range perUser {
			st := states[user]
			st.fees = st.fees.Add(amount)
			st.extras = append(st.extras, allocation.ExtraAllocation{Name: extraName(f, "fee"), Amount: amount})
		}
	}

	// Step 5: tip, which may base on the post-tax or post-fees subtotal.
	if t := in.Extras.Tip; t != nil {
		if t.Kind == allocation.Percent && t.Value.GreaterThan(threshold) {
			res.Issues = append(res.Issues, warning(IssueExtremePercentage,
				"tip of %s%% exceeds %s%%", t.Value, threshold))
		}
		perUser := applyExtra(*t, in, states)
		for user, amount := range perUser {
			st := states[user]
			st.tip = st.tip.Add(amount)
			st.extras = append(st.extras, allocation.ExtraAllocation{Name: extraName(*t, "tip"), Amount: amount})
		}
	}

	// Step 6: raw per-user totals and the receipt grand total.
	raw := make(map[string]decimal.Decimal, len(states))
	grand := decimal.Zero
	for _, user := range in.Participants {
		st := states[user]
		total := st.itemSubtotal.Sub(st.discounts).Add(st.tax).Add(st.fees).Add(st.tip)
		if total.Sign() < 0 {
			res.Issues = append(res.Issues, blocking(IssueNegativeTotal,
				"participant %q has negative total %s", user, total))
		}
		raw[user] = total
		grand = grand.Add(total)
	}
	if res.Blocked() {
		return res
	}

	cfg := in.Rule.Rounding
	step := cfg.Step
	if step.Sign() <= 0 {
		step = money.Step(in.Currency)
	}
	mode := cfg.Mode
	if mode == "" {
		mode = rounding.RoundHalfUp
	}
	policy := cfg.RemainderPolicy
	if policy == "" {
		policy = rounding.LargestShare
	}

	// Step 7: round each participant independently.
	rounded := make(map[string]decimal.Decimal, len(raw))
	for user, total := range raw {
		r, err := rounding.Round(total, step, mode)
		if err != nil {
			res.Issues = append(res.Issues, blocking(IssueComputationMismatch, "rounding failed: %v", err))
			return res
		}
		rounded[user] = r
	}

	// Step 8: the grand total charged is itself a currency amount; whatever
	// the independently rounded shares miss goes to one participant.
	grandRounded, err := rounding.Round(grand, step, mode)
	if err != nil {
		res.Issues = append(res.Issues, blocking(IssueComputationMismatch, "rounding failed: %v", err))
		return res
	}
	remainder := grandRounded
	for _, r := range rounded {
		remainder = remainder.Sub(r)
	}
	final, err := rounding.DistributeRemainder(in.Participants, rounded, raw, remainder, policy, in.PayerID)
	if err != nil {
		res.Issues = append(res.Issues, blocking(IssueComputationMismatch, "remainder distribution failed: %v", err))
		return res
	}

	// Step 9: conservation check. A mismatch here is an engine bug.
	sum := decimal.Zero
	for _, amt := range final {
		sum = sum.Add(amt)
	}
	if !money.WithinEpsilon(sum, grandRounded, in.Currency) {
		res.Issues = append(res.Issues, blocking(IssueComputationMismatch,
			"distributed %s but receipt totals %s", sum, grandRounded))
		return res
	}

	breakdown := make(map[string]*allocation.ParticipantBreakdown, len(states))
	for _, user := range in.Participants {
		st := states[user]
		breakdown[user] = &allocation.ParticipantBreakdown{
			UserID:             user,
			ItemsSubtotal:      st.itemSubtotal,
			Discounts:          st.discounts,
			Tax:                st.tax,
			Fees:               st.fees,
			Tip:                st.tip,
			RoundingAdjustment: final[user].Sub(raw[user]),
			Total:              final[user],
			Items:              st.contributions,
			Extras:             st.extras,
		}
	}

	res.ParticipantAmounts = final
	res.Breakdown = breakdown
	res.GrandTotal = grandRounded
	return res
}

// applyExtra computes one extra's per-participant amounts. Percent extras
// apply the percentage to each participant's current base subtotal; absolute
// extras are split per the allocation rule.
func applyExtra(e allocation.Extra, in ItemizedInput, states map[string]*participantState) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(states))

	if e.Kind == allocation.Percent {
		rate := e.Value.Div(hundred)
		for user, st := range states {
			out[user] = baseAmount(st, e.Base).Mul(rate)
		}
		return out
	}

	// Absolute: proportional to item subtotals or even across participants.
	switch in.Rule.AbsoluteSplitMode {
	case allocation.SplitEven:
		per := e.Value.DivRound(decimal.NewFromInt(int64(len(in.Participants))), 28)
		for _, user := range in.Participants {
			out[user] = per
		}
	default:
		total := decimal.Zero
		for _, st := range states {
			total = total.Add(st.itemSubtotal)
		}
		if total.IsZero() {
			// Nothing to be proportional to; fall back to an even split.
			per := e.Value.DivRound(decimal.NewFromInt(int64(len(in.Participants))), 28)
			for _, user := range in.Participants {
				out[user] = per
			}
			return out
		}
		for user, st := range states {
			out[user] = e.Value.Mul(st.itemSubtotal).DivRound(total, 28)
		}
	}
	return out
}

// baseAmount reads the participant's subtotal for the given percent base.
// Bases later in the pipeline (post_tax, post_fees) read whatever has been
// accumulated so far, which is why the pipeline order is fixed.
func baseAmount(st *participantState, base allocation.PercentBase) decimal.Decimal {
	switch base {
	case allocation.BaseTaxableItems:
		return st.taxableSubtotal
	case allocation.BaseServiceableItems:
		return st.serviceableSubtotal
	case allocation.BasePostDiscount:
		return st.itemSubtotal.Sub(st.discounts)
	case allocation.BasePostTax:
		return st.itemSubtotal.Sub(st.discounts).Add(st.tax)
	case allocation.BasePostFees:
		return st.itemSubtotal.Sub(st.discounts).Add(st.tax).Add(st.fees)
	default:
		return st.itemSubtotal
	}
}

func extraName(e allocation.Extra, fallback string) string {
	if e.Name != "" {
		return e.Name
	}
	return fallback
}
