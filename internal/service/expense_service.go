package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tripledger/tripledger/internal/allocation"
	"github.com/tripledger/tripledger/internal/calculator"
	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/storage"
)

// ErrValidationFailed is returned when an expense carries blocking validation
// issues. The issues themselves travel alongside in the returned result.
var ErrValidationFailed = errors.New("expense validation failed")

var (
	expensesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripledger_expenses_created_total",
		Help: "Number of expenses successfully persisted.",
	})
	expenseValidationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tripledger_expense_validation_failures_total",
		Help: "Number of expense saves rejected by blocking validation issues.",
	})
)

// ExpenseService validates and persists expenses. Itemized expenses pass
// through the allocation calculator on every save; blocking issues reject
// the save so canonical amounts in storage are always trustworthy.
type ExpenseService struct {
	store storage.Store
}

// NewExpenseService creates a new ExpenseService with the given storage
// backend.
func NewExpenseService(store storage.Store) *ExpenseService {
	return &ExpenseService{store: store}
}

// CreateExpense validates and persists an expense. For itemized expenses
// (Items present) it computes the canonical participant amounts and stores
// them with the expense. The returned result carries the breakdown and any
// warnings; with ErrValidationFailed it carries the blocking issues instead.
func (s *ExpenseService) CreateExpense(ctx context.Context, expense *models.Expense) (*calculator.ItemizedResult, error) {
	result, err := s.prepare(expense)
	if err != nil {
		return result, err
	}
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		slog.Error("CreateExpense failed", "trip_id", expense.TripID, "error", err)
		return nil, err
	}
	expensesCreated.Inc()
	slog.Info("Expense created",
		"expense_id", expense.ID,
		"trip_id", expense.TripID,
		"split_type", expense.Split.Type(),
		"amount", money.String(expense.Amount, expense.Currency),
	)
	return result, nil
}

// UpdateExpense revalidates and replaces an existing expense.
func (s *ExpenseService) UpdateExpense(ctx context.Context, expense *models.Expense) (*calculator.ItemizedResult, error) {
	result, err := s.prepare(expense)
	if err != nil {
		return result, err
	}
	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		slog.Error("UpdateExpense failed", "expense_id", expense.ID, "error", err)
		return nil, err
	}
	slog.Info("Expense updated", "expense_id", expense.ID, "trip_id", expense.TripID)
	return result, nil
}

// GetExpense retrieves an expense by ID.
func (s *ExpenseService) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		slog.Error("GetExpense failed", "expense_id", expenseID, "error", err)
		return nil, err
	}
	return expense, nil
}

// DeleteExpense removes an expense.
func (s *ExpenseService) DeleteExpense(ctx context.Context, expenseID string) error {
	if err := s.store.DeleteExpense(ctx, expenseID); err != nil {
		slog.Error("DeleteExpense failed", "expense_id", expenseID, "error", err)
		return err
	}
	slog.Info("Expense deleted", "expense_id", expenseID)
	return nil
}

// ListExpensesByTrip retrieves all of a trip's expenses.
func (s *ExpenseService) ListExpensesByTrip(ctx context.Context, tripID string) ([]*models.Expense, error) {
	expenses, err := s.store.ListExpensesByTrip(ctx, tripID)
	if err != nil {
		slog.Error("ListExpensesByTrip failed", "trip_id", tripID, "error", err)
		return nil, err
	}
	return expenses, nil
}

// prepare runs pre-save validation and, for itemized expenses, the
// allocation calculator.
func (s *ExpenseService) prepare(expense *models.Expense) (*calculator.ItemizedResult, error) {
	if len(expense.Items) == 0 {
		if err := expense.Validate(); err != nil {
			expenseValidationFailures.Inc()
			return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		return nil, nil
	}

	participants := participantOrder(expense)
	rule := allocation.DefaultRule(money.Step(expense.Currency))
	if expense.Rule != nil {
		rule = *expense.Rule
	} else {
		expense.Rule = &rule
	}

	result := calculator.CalculateItemized(calculator.ItemizedInput{
		Items:        expense.Items,
		Extras:       derefExtras(expense.Extras),
		Rule:         rule,
		Participants: participants,
		PayerID:      expense.PayerID,
		Currency:     expense.Currency,
	})
	if result.Blocked() {
		expenseValidationFailures.Inc()
		slog.Warn("Itemized expense rejected",
			"trip_id", expense.TripID,
			"issues", len(result.Issues),
		)
		return result, ErrValidationFailed
	}

	if expense.Amount.IsZero() {
		expense.Amount = result.GrandTotal
	} else if !money.WithinEpsilon(expense.Amount, result.GrandTotal, expense.Currency) {
		expenseValidationFailures.Inc()
		result.Issues = append(result.Issues, calculator.Issue{
			Code:     calculator.IssueComputationMismatch,
			Message:  fmt.Sprintf("receipt totals %s but expense amount is %s", result.GrandTotal, expense.Amount),
			Blocking: true,
		})
		return result, ErrValidationFailed
	}

	// Users assigned to items but absent from the declared participant list
	// still consumed part of the receipt; they join the split at the end.
	users := make([]string, 0, len(result.ParticipantAmounts))
	seen := make(map[string]bool, len(participants))
	for _, u := range participants {
		if _, ok := result.ParticipantAmounts[u]; ok && !seen[u] {
			seen[u] = true
			users = append(users, u)
		}
	}
	var extra []string
	for u := range result.ParticipantAmounts {
		if !seen[u] {
			extra = append(extra, u)
		}
	}
	sort.Strings(extra)
	users = append(users, extra...)
	expense.Split = models.ItemizedSplit{Users: users, ParticipantAmounts: result.ParticipantAmounts}

	if err := expense.Validate(); err != nil {
		expenseValidationFailures.Inc()
		return result, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return result, nil
}

// participantOrder returns the expense's participant order: the declared
// split order when present, otherwise first appearance across item
// assignments.
func participantOrder(expense *models.Expense) []string {
	if expense.Split != nil && len(expense.Split.Participants()) > 0 {
		return expense.Split.Participants()
	}
	seen := make(map[string]bool)
	var order []string
	for _, item := range expense.Items {
		for _, u := range item.Assignment.Users {
			if !seen[u] {
				seen[u] = true
				order = append(order, u)
			}
		}
	}
	return order
}

func derefExtras(extras *allocation.Extras) allocation.Extras {
	if extras == nil {
		return allocation.Extras{}
	}
	return *extras
}
