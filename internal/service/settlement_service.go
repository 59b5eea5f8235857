package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tripledger/tripledger/internal/calculator"
	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/storage"
)

var (
	settlementsComputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tripledger_settlements_computed_total",
		Help: "Number of settlement computations, by transfer strategy.",
	}, []string{"strategy"})
	settlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tripledger_settlement_duration_seconds",
		Help:    "Wall time of settlement computations including storage reads.",
		Buckets: prometheus.DefBuckets,
	})
)

// SettlementOptions tunes one settlement computation.
type SettlementOptions struct {
	// BaseCurrency is the trip's base currency; empty derives it from the
	// first expense.
	BaseCurrency string

	// Participants seeds the summaries; users appearing in expenses are
	// always included regardless.
	Participants []string

	// Strategy selects the transfer engine; empty means pairwise netting.
	Strategy calculator.StrategyName

	// IncludeCategorySpending requests per-user category buckets.
	IncludeCategorySpending bool

	// Persist replaces the trip's unsettled transfers with the computed
	// ones.
	Persist bool
}

// SettlementService computes and persists trip settlements.
type SettlementService struct {
	store storage.Store
	now   func() time.Time
}

// NewSettlementService creates a new SettlementService with the given
// storage backend.
func NewSettlementService(store storage.Store) *SettlementService {
	return &SettlementService{store: store, now: time.Now}
}

// ComputeSettlement loads a trip's expenses, payments and categories, runs
// the settlement aggregation, and optionally persists the resulting
// transfers.
func (s *SettlementService) ComputeSettlement(ctx context.Context, tripID string, opts SettlementOptions) (*calculator.SettlementResult, error) {
	start := s.now()
	defer func() {
		settlementDuration.Observe(time.Since(start).Seconds())
	}()

	expenses, err := s.store.ListExpensesByTrip(ctx, tripID)
	if err != nil {
		slog.Error("ComputeSettlement: failed to load expenses", "trip_id", tripID, "error", err)
		return nil, err
	}
	payments, err := s.store.ListPaymentsByTrip(ctx, tripID)
	if err != nil {
		slog.Error("ComputeSettlement: failed to load payments", "trip_id", tripID, "error", err)
		return nil, err
	}

	currency := opts.BaseCurrency
	if currency == "" && len(expenses) > 0 {
		currency = expenses[0].Currency
	}
	if currency == "" {
		currency = "USD"
	}

	var categories []models.Category
	if opts.IncludeCategorySpending {
		if categories, err = s.store.ListCategories(ctx); err != nil {
			slog.Warn("ComputeSettlement: failed to load categories", "trip_id", tripID, "error", err)
			categories = nil
		}
	}

	result, err := calculator.ComputeSettlement(calculator.SettlementRequest{
		TripID:                  tripID,
		BaseCurrency:            currency,
		Participants:            opts.Participants,
		Expenses:                expenses,
		Payments:                payments,
		Categories:              categories,
		Strategy:                opts.Strategy,
		IncludeCategorySpending: opts.IncludeCategorySpending,
		ComputedAt:              start.Unix(),
	})
	if err != nil {
		slog.Error("ComputeSettlement failed", "trip_id", tripID, "error", err)
		return nil, fmt.Errorf("settlement for trip %s: %w", tripID, err)
	}

	if opts.Persist {
		persisted, err := s.store.ReplaceTransfers(ctx, tripID, result.Transfers)
		if err != nil {
			slog.Error("ComputeSettlement: failed to persist transfers", "trip_id", tripID, "error", err)
			return nil, err
		}
		result.Transfers = persisted
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = calculator.StrategyPairwise
	}
	settlementsComputed.WithLabelValues(string(strategy)).Inc()
	slog.Info("Settlement computed",
		"trip_id", tripID,
		"strategy", strategy,
		"expenses", len(expenses),
		"transfers", len(result.Transfers),
		"warnings", len(result.Warnings),
	)
	return result, nil
}

// RecordPayment stores a manual payment between participants.
func (s *SettlementService) RecordPayment(ctx context.Context, payment *models.Payment) error {
	if payment.FromUserID == "" || payment.ToUserID == "" {
		return fmt.Errorf("payment requires both from and to users")
	}
	if payment.FromUserID == payment.ToUserID {
		return fmt.Errorf("payment cannot be from a user to themselves")
	}
	if payment.Amount.Sign() <= 0 {
		return fmt.Errorf("payment amount must be positive, got %s", payment.Amount)
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		slog.Error("RecordPayment failed", "trip_id", payment.TripID, "error", err)
		return err
	}
	slog.Info("Payment recorded",
		"payment_id", payment.ID,
		"trip_id", payment.TripID,
		"from", payment.FromUserID,
		"to", payment.ToUserID,
	)
	return nil
}

// ListTransfers retrieves a trip's transfers.
func (s *SettlementService) ListTransfers(ctx context.Context, tripID string) ([]models.MinimalTransfer, error) {
	transfers, err := s.store.ListTransfersByTrip(ctx, tripID)
	if err != nil {
		slog.Error("ListTransfers failed", "trip_id", tripID, "error", err)
		return nil, err
	}
	return transfers, nil
}

// ListCategories retrieves the category records used to decorate spending
// output.
func (s *SettlementService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		slog.Error("ListCategories failed", "error", err)
		return nil, err
	}
	return categories, nil
}

// MarkTransferSettled marks a computed transfer as paid.
func (s *SettlementService) MarkTransferSettled(ctx context.Context, transferID string) error {
	if err := s.store.MarkTransferSettled(ctx, transferID, s.now().Unix()); err != nil {
		slog.Error("MarkTransferSettled failed", "transfer_id", transferID, "error", err)
		return err
	}
	slog.Info("Transfer settled", "transfer_id", transferID)
	return nil
}
