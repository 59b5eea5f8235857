package calculator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
)

// ErrBalanceConservation is returned when the sum of all net balances drifts
// beyond the currency epsilon. It indicates an internal invariant violation,
// never a user input problem, and is surfaced rather than swallowed.
var ErrBalanceConservation = errors.New("balance conservation violated")

// uncategorized is the category bucket for expenses without a category.
const uncategorized = "uncategorized"

// SettlementRequest is one trip's settlement computation input.
type SettlementRequest struct {
	TripID       string
	BaseCurrency string

	// Participants seeds the summaries so every trip member appears even
	// with no expenses.
	Participants []string

	Expenses []*models.Expense
	Payments []models.Payment

	// Categories decorate category spending output; absence degrades to
	// id-only buckets.
	Categories []models.Category

	// Strategy selects the transfer engine; empty means pairwise.
	Strategy StrategyName

	// IncludeCategorySpending requests per-user category bucketing, done in
	// the same pass as the balance aggregation.
	IncludeCategorySpending bool

	ComputedAt int64
}

// SettlementResult is one trip's complete settlement output.
type SettlementResult struct {
	Summaries        map[string]models.PersonSummary
	Transfers        []models.MinimalTransfer
	CategorySpending map[string]models.PersonCategorySpending
	Warnings         []Issue
}

// ComputeSettlement aggregates a trip's expenses into person summaries,
// transfers, and optionally category spending. The aggregation is a single
// pass over the expenses; balances and category buckets accumulate together.
//
// After aggregation the net balances must conserve: their sum is zero within
// the currency epsilon, or ErrBalanceConservation is returned.
func ComputeSettlement(req SettlementRequest) (*SettlementResult, error) {
	type position struct {
		paid decimal.Decimal
		owed decimal.Decimal
	}
	positions := make(map[string]*position)
	at := func(userID string) *position {
		p, ok := positions[userID]
		if !ok {
			p = &position{}
			positions[userID] = p
		}
		return p
	}
	for _, userID := range req.Participants {
		at(userID)
	}

	// Category buckets: user -> category id -> amount.
	var buckets map[string]map[string]decimal.Decimal
	if req.IncludeCategorySpending {
		buckets = make(map[string]map[string]decimal.Decimal)
	}

	var warnings []Issue
	for _, e := range req.Expenses {
		if e.PayerID == "" {
			continue
		}
		shares, err := e.Split.Shares(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		sumShares := decimal.Zero
		for _, s := range shares {
			sumShares = sumShares.Add(s)
		}
		if !money.WithinEpsilon(sumShares, e.Amount, req.BaseCurrency) {
			warnings = append(warnings, warning(IssueComputationMismatch,
				"expense %s: shares sum to %s, amount is %s", e.ID, sumShares, e.Amount))
		}

		at(e.PayerID).paid = at(e.PayerID).paid.Add(e.Amount)

		categoryID := e.CategoryID
		if categoryID == "" {
			categoryID = uncategorized
		}
		for userID, share := range shares {
			at(userID).owed = at(userID).owed.Add(share)
			if buckets != nil {
				if buckets[userID] == nil {
					buckets[userID] = make(map[string]decimal.Decimal)
				}
				buckets[userID][categoryID] = buckets[userID][categoryID].Add(share)
			}
		}
	}

	for _, p := range req.Payments {
		at(p.FromUserID).paid = at(p.FromUserID).paid.Add(p.Amount)
		at(p.ToUserID).owed = at(p.ToUserID).owed.Add(p.Amount)
	}

	summaries := make(map[string]models.PersonSummary, len(positions))
	netSum := decimal.Zero
	for userID, p := range positions {
		net := p.paid.Sub(p.owed)
		summaries[userID] = models.PersonSummary{
			UserID:    userID,
			TotalPaid: p.paid,
			TotalOwed: p.owed,
			Net:       net,
		}
		netSum = netSum.Add(net)
	}

	if netSum.Abs().GreaterThanOrEqual(money.Epsilon(req.BaseCurrency)) {
		return nil, fmt.Errorf("%w: net balances sum to %s", ErrBalanceConservation, netSum)
	}

	strategy, err := NewStrategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	transfers, err := strategy.Transfers(TransferInput{
		TripID:     req.TripID,
		Currency:   req.BaseCurrency,
		Expenses:   req.Expenses,
		Payments:   req.Payments,
		Summaries:  summaries,
		ComputedAt: req.ComputedAt,
	})
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{
		Summaries: summaries,
		Transfers: transfers,
		Warnings:  warnings,
	}
	if buckets != nil {
		result.CategorySpending = categorySpending(buckets, req.Categories)
	}
	return result, nil
}

// categorySpending converts raw buckets into decorated, sorted records.
// Sorting is descending by amount with category id as tie-break, so output
// order is deterministic.
func categorySpending(buckets map[string]map[string]decimal.Decimal, categories []models.Category) map[string]models.PersonCategorySpending {
	meta := make(map[string]models.Category, len(categories))
	for _, c := range categories {
		meta[c.ID] = c
	}

	out := make(map[string]models.PersonCategorySpending, len(buckets))
	for userID, byCategory := range buckets {
		spending := models.PersonCategorySpending{UserID: userID}
		for categoryID, amount := range byCategory {
			entry := models.CategorySpending{
				CategoryID:   categoryID,
				CategoryName: categoryID,
				Amount:       amount,
			}
			if c, ok := meta[categoryID]; ok {
				entry.CategoryName = c.Name
				entry.Color = c.Color
				entry.Icon = c.Icon
			}
			spending.Categories = append(spending.Categories, entry)
			spending.Total = spending.Total.Add(amount)
		}
		sort.Slice(spending.Categories, func(i, j int) bool {
			a, b := spending.Categories[i], spending.Categories[j]
			if !a.Amount.Equal(b.Amount) {
				return a.Amount.GreaterThan(b.Amount)
			}
			return a.CategoryID < b.CategoryID
		})
		out[userID] = spending
	}
	return out
}
