package models

import "github.com/shopspring/decimal"

// PersonSummary is one participant's aggregate position across a trip, in the
// trip's base currency.
type PersonSummary struct {
	UserID string

	// TotalPaid is everything this person paid for, across all expenses and
	// recorded payments.
	TotalPaid decimal.Decimal

	// TotalOwed is everything this person consumed, across all expense
	// shares and received payments.
	TotalOwed decimal.Decimal

	// Net is TotalPaid - TotalOwed. Positive = is owed money,
	// negative = owes money.
	Net decimal.Decimal
}

// Category decorates spending output with display metadata.
type Category struct {
	ID    string
	Name  string
	Color string
	Icon  string
}

// CategorySpending is one category bucket of a person's spending.
type CategorySpending struct {
	CategoryID   string
	CategoryName string
	Amount       decimal.Decimal
	Color        string
	Icon         string
}

// PersonCategorySpending is a participant's spending bucketed by expense
// category, sorted descending by amount.
type PersonCategorySpending struct {
	UserID     string
	Total      decimal.Decimal
	Categories []CategorySpending
}
