// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/tripledger/tripledger/internal/models"
)

// Store defines the interface for expense and settlement storage operations.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the service layer.
//
// All monetary values cross this boundary as exact decimal strings; the
// implementations never store a binary float.
type Store interface {
	// CreateExpense persists a new expense. The expense.ID field will be
	// populated by the store if empty.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense by its ID, including itemized detail.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense replaces an existing expense.
	// Returns an error if the expense is not found.
	UpdateExpense(ctx context.Context, expense *models.Expense) error

	// DeleteExpense removes an expense by ID.
	DeleteExpense(ctx context.Context, expenseID string) error

	// ListExpensesByTrip retrieves all expenses for a trip, oldest first.
	ListExpensesByTrip(ctx context.Context, tripID string) ([]*models.Expense, error)

	// CreatePayment records a manual payment between participants.
	CreatePayment(ctx context.Context, payment *models.Payment) error

	// ListPaymentsByTrip retrieves all payments for a trip, oldest first.
	ListPaymentsByTrip(ctx context.Context, tripID string) ([]models.Payment, error)

	// ReplaceTransfers atomically deletes a trip's unsettled transfers and
	// inserts the freshly computed ones, assigning IDs. Settled transfers
	// are never touched.
	ReplaceTransfers(ctx context.Context, tripID string, transfers []models.MinimalTransfer) ([]models.MinimalTransfer, error)

	// ListTransfersByTrip retrieves all transfers for a trip, newest first.
	ListTransfersByTrip(ctx context.Context, tripID string) ([]models.MinimalTransfer, error)

	// MarkTransferSettled flips a transfer's settled flag. This is the one
	// post-creation mutation in the model.
	MarkTransferSettled(ctx context.Context, transferID string, settledAt int64) error

	// CreateCategory persists a category.
	CreateCategory(ctx context.Context, category *models.Category) error

	// ListCategories retrieves all categories.
	ListCategories(ctx context.Context) ([]models.Category, error)

	// Close releases any resources held by the store.
	Close() error
}
