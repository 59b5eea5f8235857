package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/allocation"
	"github.com/tripledger/tripledger/internal/calculator"
	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/storage/sqlite"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setupTestStore creates a temp SQLite store for service tests.
func setupTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "tripledger-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := sqlite.New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestExpenseServiceCreateEqual(t *testing.T) {
	svc := NewExpenseService(setupTestStore(t))
	ctx := context.Background()

	expense := &models.Expense{
		TripID:   "trip1",
		PayerID:  "alice",
		Currency: "USD",
		Amount:   d("30.00"),
		Split:    models.EqualSplit{Users: []string{"alice", "bob"}},
	}
	result, err := svc.CreateExpense(ctx, expense)
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if result != nil {
		t.Error("equal split should not produce an itemized result")
	}
	if expense.ID == "" {
		t.Error("expected ID to be assigned")
	}

	got, err := svc.GetExpense(ctx, expense.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if !got.Amount.Equal(d("30.00")) {
		t.Errorf("amount %s, want 30.00", got.Amount)
	}
}

func TestExpenseServiceCreateItemized(t *testing.T) {
	svc := NewExpenseService(setupTestStore(t))
	ctx := context.Background()

	expense := &models.Expense{
		TripID:   "trip1",
		PayerID:  "alice",
		Currency: "USD",
		Split:    models.EqualSplit{Users: []string{"alice", "bob"}},
		Items: []allocation.LineItem{
			{
				Name: "entree", Quantity: d("1"), UnitPrice: d("20.00"),
				Assignment: allocation.EvenAssignment("alice", "bob"),
			},
		},
		Extras: &allocation.Extras{
			Tax: &allocation.Extra{Kind: allocation.Percent, Value: d("10"), Base: allocation.BasePostDiscount},
			Tip: &allocation.Extra{Kind: allocation.Percent, Value: d("20"), Base: allocation.BasePostTax},
		},
	}

	result, err := svc.CreateExpense(ctx, expense)
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected itemized result")
	}

	// The service fills the amount from the receipt and stores the canonical
	// split.
	if !expense.Amount.Equal(d("26.40")) {
		t.Errorf("amount %s, want 26.40", expense.Amount)
	}
	split, ok := expense.Split.(models.ItemizedSplit)
	if !ok {
		t.Fatalf("split type %T, want ItemizedSplit", expense.Split)
	}
	if !split.ParticipantAmounts["bob"].Equal(d("13.20")) {
		t.Errorf("bob amount %s, want 13.20", split.ParticipantAmounts["bob"])
	}

	// Round-trip: stored amounts come back exactly.
	got, err := svc.GetExpense(ctx, expense.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	stored, ok := got.Split.(models.ItemizedSplit)
	if !ok {
		t.Fatalf("stored split type %T, want ItemizedSplit", got.Split)
	}
	if !stored.ParticipantAmounts["alice"].Equal(d("13.20")) {
		t.Errorf("stored alice amount %s, want 13.20", stored.ParticipantAmounts["alice"])
	}
}

func TestExpenseServiceRejectsBrokenReceipt(t *testing.T) {
	store := setupTestStore(t)
	svc := NewExpenseService(store)
	ctx := context.Background()

	expense := &models.Expense{
		TripID:   "trip1",
		PayerID:  "alice",
		Currency: "USD",
		Split:    models.EqualSplit{Users: []string{"alice", "bob"}},
		Items: []allocation.LineItem{
			{Name: "orphan", Quantity: d("1"), UnitPrice: d("9.00")},
		},
	}

	result, err := svc.CreateExpense(ctx, expense)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("got %v, want ErrValidationFailed", err)
	}
	if result == nil || !result.Blocked() {
		t.Fatal("expected a blocked result carrying the issues")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Code == calculator.IssueUnassignedItem {
			found = true
		}
	}
	if !found {
		t.Errorf("issues %v, want unassigned_item", result.Issues)
	}

	// Nothing must have been persisted.
	expenses, err := store.ListExpensesByTrip(ctx, "trip1")
	if err != nil {
		t.Fatalf("ListExpensesByTrip failed: %v", err)
	}
	if len(expenses) != 0 {
		t.Errorf("got %d persisted expenses, want 0", len(expenses))
	}
}

func TestExpenseServiceRejectsAmountMismatch(t *testing.T) {
	svc := NewExpenseService(setupTestStore(t))
	ctx := context.Background()

	expense := &models.Expense{
		TripID:   "trip1",
		PayerID:  "alice",
		Currency: "USD",
		Amount:   d("99.00"), // receipt computes to 20.00
		Split:    models.EqualSplit{Users: []string{"alice", "bob"}},
		Items: []allocation.LineItem{
			{
				Name: "entree", Quantity: d("1"), UnitPrice: d("20.00"),
				Assignment: allocation.EvenAssignment("alice", "bob"),
			},
		},
	}

	result, err := svc.CreateExpense(ctx, expense)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("got %v, want ErrValidationFailed", err)
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Code == calculator.IssueComputationMismatch && issue.Blocking {
			found = true
		}
	}
	if !found {
		t.Errorf("issues %v, want blocking computation_mismatch", result.Issues)
	}
}

func TestExpenseServiceUpdateRevalidates(t *testing.T) {
	svc := NewExpenseService(setupTestStore(t))
	ctx := context.Background()

	expense := &models.Expense{
		TripID:   "trip1",
		PayerID:  "alice",
		Currency: "USD",
		Split:    models.EqualSplit{Users: []string{"alice", "bob"}},
		Items: []allocation.LineItem{
			{
				Name: "pizza", Quantity: d("1"), UnitPrice: d("18.00"),
				Assignment: allocation.EvenAssignment("alice", "bob"),
			},
		},
	}
	if _, err := svc.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// Breaking the receipt on update must be rejected too.
	expense.Items[0].Assignment = allocation.ItemAssignment{}
	if _, err := svc.UpdateExpense(ctx, expense); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("got %v, want ErrValidationFailed", err)
	}
}

func TestExpenseServiceDeleteExpense(t *testing.T) {
	svc := NewExpenseService(setupTestStore(t))
	ctx := context.Background()

	expense := &models.Expense{
		TripID:   "trip1",
		PayerID:  "alice",
		Currency: "USD",
		Amount:   d("10.00"),
		Split:    models.EqualSplit{Users: []string{"alice"}},
	}
	if _, err := svc.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if err := svc.DeleteExpense(ctx, expense.ID); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if _, err := svc.GetExpense(ctx, expense.ID); err == nil {
		t.Error("expected error after delete, got nil")
	}
}
