package calculator

import (
	"fmt"

	"github.com/tripledger/tripledger/internal/models"
)

// StrategyName identifies a transfer strategy.
type StrategyName string

const (
	// StrategyPairwise emits at most one transfer per participant pair,
	// each traceable to that pair's expense history. Preferred.
	StrategyPairwise StrategyName = "pairwise"

	// StrategyGreedy emits a near-minimal transaction count via greedy
	// matching. Legacy, retained for compatibility.
	StrategyGreedy StrategyName = "greedy"
)

// TransferInput is the data a transfer strategy may draw on. Pairwise uses
// the expense and payment lists; greedy uses the computed summaries.
type TransferInput struct {
	TripID     string
	Currency   string
	Expenses   []*models.Expense
	Payments   []models.Payment
	Summaries  map[string]models.PersonSummary
	ComputedAt int64
}

// TransferStrategy turns a trip's balances into payable transfers. Both
// remaining strategies implement it; the caller selects one by name.
type TransferStrategy interface {
	Name() StrategyName
	Transfers(in TransferInput) ([]models.MinimalTransfer, error)
}

// NewStrategy returns the strategy for the given name. An empty name selects
// the preferred pairwise netting strategy.
func NewStrategy(name StrategyName) (TransferStrategy, error) {
	switch name {
	case StrategyPairwise, "":
		return pairwiseStrategy{}, nil
	case StrategyGreedy:
		return greedyStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown transfer strategy %q", name)
	}
}

type pairwiseStrategy struct{}

func (pairwiseStrategy) Name() StrategyName { return StrategyPairwise }

func (pairwiseStrategy) Transfers(in TransferInput) ([]models.MinimalTransfer, error) {
	debts, err := PairwiseDebts(in.Expenses, in.Payments, in.Currency, in.ComputedAt)
	if err != nil {
		return nil, err
	}
	transfers := make([]models.MinimalTransfer, 0, len(debts))
	for _, d := range debts {
		transfers = append(transfers, models.MinimalTransfer{
			TripID:     in.TripID,
			FromUserID: d.FromUserID,
			ToUserID:   d.ToUserID,
			Amount:     d.Amount,
			Currency:   in.Currency,
			ComputedAt: d.ComputedAt,
		})
	}
	return transfers, nil
}

type greedyStrategy struct{}

func (greedyStrategy) Name() StrategyName { return StrategyGreedy }

func (greedyStrategy) Transfers(in TransferInput) ([]models.MinimalTransfer, error) {
	transfers := GreedyTransfers(in.Summaries, in.Currency, in.ComputedAt)
	for i := range transfers {
		transfers[i].TripID = in.TripID
	}
	return transfers, nil
}
