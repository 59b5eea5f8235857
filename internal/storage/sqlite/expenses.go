package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/allocation"
	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
	"github.com/tripledger/tripledger/internal/rounding"
)

// Extra slots in the expense_extras table.
const (
	slotTax      = "tax"
	slotTip      = "tip"
	slotFee      = "fee"
	slotDiscount = "discount"
)

// CreateExpense persists a new expense, including itemized detail.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateExpense replaces an existing expense and its detail rows.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expense.ID)
	if err != nil {
		return fmt.Errorf("failed to replace expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to replace expense: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense not found: %s", expense.ID)
	}

	if err := insertExpense(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteExpense removes an expense by ID.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("expense not found: %s", expenseID)
	}
	return nil
}

func insertExpense(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	var splitMode, roundStep, roundMode, remainderPolicy sql.NullString
	if expense.Rule != nil {
		splitMode = sql.NullString{String: string(expense.Rule.AbsoluteSplitMode), Valid: true}
		roundStep = sql.NullString{String: expense.Rule.Rounding.Step.String(), Valid: true}
		roundMode = sql.NullString{String: string(expense.Rule.Rounding.Mode), Valid: true}
		remainderPolicy = sql.NullString{String: string(expense.Rule.Rounding.RemainderPolicy), Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (id, trip_id, payer_id, description, category_id, currency, amount,
		                       split_type, absolute_split_mode, rounding_step, rounding_mode, remainder_policy, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.TripID, expense.PayerID, expense.Description, expense.CategoryID,
		expense.Currency, expense.Amount.String(), string(expense.Split.Type()),
		splitMode, roundStep, roundMode, remainderPolicy, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	// Participant rows carry the weight (weighted) or canonical amount
	// (itemized) for their split variant.
	var weights map[string]decimal.Decimal
	var amounts map[string]decimal.Decimal
	switch split := expense.Split.(type) {
	case models.WeightedSplit:
		weights = split.Weights
	case models.ItemizedSplit:
		amounts = split.ParticipantAmounts
	}
	for i, userID := range expense.Split.Participants() {
		var weight, amount sql.NullString
		if w, ok := weights[userID]; ok {
			weight = sql.NullString{String: w.String(), Valid: true}
		}
		if a, ok := amounts[userID]; ok {
			amount = sql.NullString{String: a.String(), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, user_id, position, weight, amount) VALUES (?, ?, ?, ?, ?)",
			expense.ID, userID, i, weight, amount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	for i := range expense.Items {
		item := &expense.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO expense_items (id, expense_id, position, name, quantity, unit_price, taxable, service_chargeable, assignment_kind)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, expense.ID, i, item.Name, item.Quantity.String(), item.UnitPrice.String(),
			boolToInt(item.Taxable), boolToInt(item.ServiceChargeable), string(item.Assignment.Kind),
		)
		if err != nil {
			return fmt.Errorf("failed to insert item: %w", err)
		}

		for j, userID := range item.Assignment.Users {
			var share sql.NullString
			if sh, ok := item.Assignment.Shares[userID]; ok {
				share = sql.NullString{String: sh.String(), Valid: true}
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO item_assignments (item_id, user_id, position, share) VALUES (?, ?, ?, ?)",
				item.ID, userID, j, share,
			)
			if err != nil {
				return fmt.Errorf("failed to insert item assignment: %w", err)
			}
		}
	}

	if expense.Extras != nil {
		if err := insertExtras(ctx, tx, expense.ID, expense.Extras); err != nil {
			return err
		}
	}
	return nil
}

func insertExtras(ctx context.Context, tx *sql.Tx, expenseID string, extras *allocation.Extras) error {
	insert := func(slot string, position int, e allocation.Extra) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_extras (expense_id, slot, position, name, kind, value, base) VALUES (?, ?, ?, ?, ?, ?, ?)",
			expenseID, slot, position, e.Name, string(e.Kind), e.Value.String(), string(e.Base),
		)
		if err != nil {
			return fmt.Errorf("failed to insert extra: %w", err)
		}
		return nil
	}
	if extras.Tax != nil {
		if err := insert(slotTax, 0, *extras.Tax); err != nil {
			return err
		}
	}
	if extras.Tip != nil {
		if err := insert(slotTip, 0, *extras.Tip); err != nil {
			return err
		}
	}
	for i, fee := range extras.Fees {
		if err := insert(slotFee, i, fee); err != nil {
			return err
		}
	}
	for i, discount := range extras.Discounts {
		if err := insert(slotDiscount, i, discount); err != nil {
			return err
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including all detail rows.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expenses, err := s.queryExpenses(ctx, "WHERE e.id = ?", expenseID)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, fmt.Errorf("expense not found: %s", expenseID)
	}
	return expenses[0], nil
}

// ListExpensesByTrip retrieves all expenses for a trip, oldest first.
func (s *SQLiteStore) ListExpensesByTrip(ctx context.Context, tripID string) ([]*models.Expense, error) {
	return s.queryExpenses(ctx, "WHERE e.trip_id = ? ORDER BY e.created_at, e.id", tripID)
}

func (s *SQLiteStore) queryExpenses(ctx context.Context, clause string, args ...any) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.trip_id, e.payer_id, e.description, e.category_id, e.currency, e.amount,
		        e.split_type, e.absolute_split_mode, e.rounding_step, e.rounding_mode, e.remainder_policy, e.created_at
		 FROM expenses e `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	type rawExpense struct {
		expense    *models.Expense
		splitType  models.SplitType
		splitMode  sql.NullString
		roundStep  sql.NullString
		roundMode  sql.NullString
		remPolicy  sql.NullString
		amountText string
	}

	var raw []*rawExpense
	for rows.Next() {
		r := &rawExpense{expense: &models.Expense{}}
		var splitType string
		if err := rows.Scan(&r.expense.ID, &r.expense.TripID, &r.expense.PayerID, &r.expense.Description,
			&r.expense.CategoryID, &r.expense.Currency, &r.amountText, &splitType,
			&r.splitMode, &r.roundStep, &r.roundMode, &r.remPolicy, &r.expense.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		r.splitType = models.SplitType(splitType)
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	expenses := make([]*models.Expense, 0, len(raw))
	for _, r := range raw {
		amount, err := money.Parse(r.amountText)
		if err != nil {
			return nil, fmt.Errorf("expense %s: %w", r.expense.ID, err)
		}
		r.expense.Amount = amount

		if r.splitMode.Valid {
			step := decimal.Zero
			if r.roundStep.Valid {
				if step, err = money.Parse(r.roundStep.String); err != nil {
					return nil, fmt.Errorf("expense %s: %w", r.expense.ID, err)
				}
			}
			r.expense.Rule = &allocation.Rule{
				AbsoluteSplitMode: allocation.AbsoluteSplitMode(r.splitMode.String),
				Rounding: allocation.RoundingConfig{
					Step:            step,
					Mode:            rounding.Mode(r.roundMode.String),
					RemainderPolicy: rounding.RemainderPolicy(r.remPolicy.String),
				},
			}
		}

		if err := s.loadSplit(ctx, r.expense, r.splitType); err != nil {
			return nil, err
		}
		if err := s.loadItems(ctx, r.expense); err != nil {
			return nil, err
		}
		if err := s.loadExtras(ctx, r.expense); err != nil {
			return nil, err
		}
		expenses = append(expenses, r.expense)
	}
	return expenses, nil
}

func (s *SQLiteStore) loadSplit(ctx context.Context, expense *models.Expense, splitType models.SplitType) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, weight, amount FROM expense_participants WHERE expense_id = ? ORDER BY position",
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var users []string
	weights := make(map[string]decimal.Decimal)
	amounts := make(map[string]decimal.Decimal)
	for rows.Next() {
		var userID string
		var weight, amount sql.NullString
		if err := rows.Scan(&userID, &weight, &amount); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		users = append(users, userID)
		if weight.Valid {
			w, err := money.Parse(weight.String)
			if err != nil {
				return fmt.Errorf("expense %s participant %s: %w", expense.ID, userID, err)
			}
			weights[userID] = w
		}
		if amount.Valid {
			a, err := money.Parse(amount.String)
			if err != nil {
				return fmt.Errorf("expense %s participant %s: %w", expense.ID, userID, err)
			}
			amounts[userID] = a
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate participants: %w", err)
	}

	switch splitType {
	case models.SplitWeighted:
		expense.Split = models.WeightedSplit{Users: users, Weights: weights}
	case models.SplitItemized:
		expense.Split = models.ItemizedSplit{Users: users, ParticipantAmounts: amounts}
	default:
		expense.Split = models.EqualSplit{Users: users}
	}
	return nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, expense *models.Expense) error {
	itemRows, err := s.db.QueryContext(ctx,
		`SELECT id, name, quantity, unit_price, taxable, service_chargeable, assignment_kind
		 FROM expense_items WHERE expense_id = ? ORDER BY position`,
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item allocation.LineItem
		var quantity, unitPrice, kind string
		var taxable, serviceable int
		if err := itemRows.Scan(&item.ID, &item.Name, &quantity, &unitPrice, &taxable, &serviceable, &kind); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}
		if item.Quantity, err = money.Parse(quantity); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		if item.UnitPrice, err = money.Parse(unitPrice); err != nil {
			return fmt.Errorf("item %s: %w", item.ID, err)
		}
		item.Taxable = taxable != 0
		item.ServiceChargeable = serviceable != 0
		item.Assignment.Kind = allocation.AssignmentKind(kind)
		expense.Items = append(expense.Items, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("failed to iterate items: %w", err)
	}

	for i := range expense.Items {
		item := &expense.Items[i]
		assignRows, err := s.db.QueryContext(ctx,
			"SELECT user_id, share FROM item_assignments WHERE item_id = ? ORDER BY position",
			item.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to get item assignments: %w", err)
		}
		for assignRows.Next() {
			var userID string
			var share sql.NullString
			if err := assignRows.Scan(&userID, &share); err != nil {
				assignRows.Close()
				return fmt.Errorf("failed to scan assignment: %w", err)
			}
			item.Assignment.Users = append(item.Assignment.Users, userID)
			if share.Valid {
				sh, err := money.Parse(share.String)
				if err != nil {
					assignRows.Close()
					return fmt.Errorf("item %s assignment %s: %w", item.ID, userID, err)
				}
				if item.Assignment.Shares == nil {
					item.Assignment.Shares = make(map[string]decimal.Decimal)
				}
				item.Assignment.Shares[userID] = sh
			}
		}
		err = assignRows.Err()
		assignRows.Close()
		if err != nil {
			return fmt.Errorf("failed to iterate assignments: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadExtras(ctx context.Context, expense *models.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, name, kind, value, base FROM expense_extras WHERE expense_id = ? ORDER BY slot, position",
		expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get extras: %w", err)
	}
	defer rows.Close()

	var extras allocation.Extras
	found := false
	for rows.Next() {
		var slot, name, kind, value, base string
		if err := rows.Scan(&slot, &name, &kind, &value, &base); err != nil {
			return fmt.Errorf("failed to scan extra: %w", err)
		}
		v, err := money.Parse(value)
		if err != nil {
			return fmt.Errorf("expense %s extra %s: %w", expense.ID, name, err)
		}
		extra := allocation.Extra{
			Name:  name,
			Kind:  allocation.ExtraKind(kind),
			Value: v,
			Base:  allocation.PercentBase(base),
		}
		found = true
		switch slot {
		case slotTax:
			extras.Tax = &extra
		case slotTip:
			extras.Tip = &extra
		case slotFee:
			extras.Fees = append(extras.Fees, extra)
		case slotDiscount:
			extras.Discounts = append(extras.Discounts, extra)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate extras: %w", err)
	}
	if found {
		expense.Extras = &extras
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
