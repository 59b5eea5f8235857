package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/rounding"
)

// PairwiseDebts collapses all of a trip's expenses and recorded payments
// into at most one directional debt per participant pair.
//
// For every expense, each non-payer participant's share becomes a directed
// debt participant -> payer. Itemized expenses contribute their stored
// canonical amounts; equal and weighted splits are derived from weights. A
// recorded payment from A to B counts as a reverse debt, reducing what A
// still owes B. Per unordered pair the two directions are netted; pairs whose
// net falls below the currency epsilon are fully settled and emit nothing.
//
// Results are sorted by (from, to) so identical inputs produce identical
// output order.
func PairwiseDebts(expenses []*models.Expense, payments []models.Payment, currency string, computedAt int64) ([]models.PairwiseDebt, error) {
	// debts[debtor][creditor] = accumulated raw amount
	debts := make(map[string]map[string]decimal.Decimal)
	addDebt := func(debtor, creditor string, amount decimal.Decimal) {
		if debtor == creditor {
			return
		}
		if debts[debtor] == nil {
			debts[debtor] = make(map[string]decimal.Decimal)
		}
		debts[debtor][creditor] = debts[debtor][creditor].Add(amount)
	}

	for _, e := range expenses {
		if e.PayerID == "" {
			continue
		}
		shares, err := e.Split.Shares(e.Amount)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", e.ID, err)
		}
		for user, share := range shares {
			addDebt(user, e.PayerID, share)
		}
	}

	for _, p := range payments {
		// A paid B, so B now effectively owes A that much back.
		addDebt(p.ToUserID, p.FromUserID, p.Amount)
	}

	// Net each unordered pair once, in sorted order.
	type pair struct{ a, b string }
	seen := make(map[pair]bool)
	var pairs []pair
	for debtor, creditors := range debts {
		for creditor := range creditors {
			a, b := debtor, creditor
			if a > b {
				a, b = b, a
			}
			if !seen[pair{a, b}] {
				seen[pair{a, b}] = true
				pairs = append(pairs, pair{a, b})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	epsilon := money.Epsilon(currency)
	step := money.Step(currency)

	var result []models.PairwiseDebt
	for _, p := range pairs {
		net := debts[p.a][p.b].Sub(debts[p.b][p.a])
		from, to := p.a, p.b
		if net.Sign() < 0 {
			from, to = p.b, p.a
			net = net.Neg()
		}
		if net.LessThan(epsilon) {
			continue
		}
		amount, err := rounding.Round(net, step, rounding.RoundHalfUp)
		if err != nil {
			return nil, err
		}
		if amount.Sign() <= 0 {
			continue
		}
		result = append(result, models.PairwiseDebt{
			FromUserID: from,
			ToUserID:   to,
			Amount:     amount,
			ComputedAt: computedAt,
		})
	}
	return result, nil
}
