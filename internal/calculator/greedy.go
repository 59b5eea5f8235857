package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/rounding"
)

// balanceEntry is one party in the greedy matching loop.
type balanceEntry struct {
	userID string
	amount decimal.Decimal // always positive magnitude
}

// GreedyTransfers turns net balances into transfers by repeatedly matching
// the largest creditor with the largest debtor. The transaction count is
// minimal for typical balance distributions, though not provably minimal
// among all solutions. Retained for compatibility with earlier settlements;
// pairwise netting is the preferred strategy.
//
// Parties are sorted descending by amount, ties broken by user id ascending,
// so transfer identity is deterministic regardless of map iteration order.
func GreedyTransfers(summaries map[string]models.PersonSummary, currency string, computedAt int64) []models.MinimalTransfer {
	epsilon := money.Epsilon(currency)
	step := money.Step(currency)

	var creditors, debtors []balanceEntry
	for userID, s := range summaries {
		switch {
		case s.Net.GreaterThanOrEqual(epsilon):
			creditors = append(creditors, balanceEntry{userID, s.Net})
		case s.Net.Neg().GreaterThanOrEqual(epsilon):
			debtors = append(debtors, balanceEntry{userID, s.Net.Neg()})
		}
	}
	sortDescending(creditors)
	sortDescending(debtors)

	var transfers []models.MinimalTransfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		debtor := &debtors[i]
		creditor := &creditors[j]

		amount := decimal.Min(debtor.amount, creditor.amount)
		payable, err := rounding.Round(amount, step, rounding.RoundHalfUp)
		if err == nil && payable.GreaterThanOrEqual(epsilon) {
			transfers = append(transfers, models.MinimalTransfer{
				FromUserID: debtor.userID,
				ToUserID:   creditor.userID,
				Amount:     payable,
				Currency:   currency,
				ComputedAt: computedAt,
			})
		}

		debtor.amount = debtor.amount.Sub(amount)
		creditor.amount = creditor.amount.Sub(amount)
		if debtor.amount.LessThan(epsilon) {
			i++
		}
		if creditor.amount.LessThan(epsilon) {
			j++
		}
	}
	return transfers
}

func sortDescending(entries []balanceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].amount.Equal(entries[j].amount) {
			return entries[i].amount.GreaterThan(entries[j].amount)
		}
		return entries[i].userID < entries[j].userID
	})
}
