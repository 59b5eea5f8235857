package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tripledger/tripledger/internal/models"
	"github.com/tripledger/tripledger/internal/money"
)

// ReplaceTransfers atomically swaps a trip's unsettled transfers for the
// freshly computed set. Settled transfers are history and stay untouched.
func (s *SQLiteStore) ReplaceTransfers(ctx context.Context, tripID string, transfers []models.MinimalTransfer) ([]models.MinimalTransfer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM transfers WHERE trip_id = ? AND is_settled = 0", tripID,
	); err != nil {
		return nil, fmt.Errorf("failed to clear unsettled transfers: %w", err)
	}

	out := make([]models.MinimalTransfer, len(transfers))
	for i, t := range transfers {
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.TripID == "" {
			t.TripID = tripID
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transfers (id, trip_id, from_user_id, to_user_id, amount, currency, computed_at, is_settled, settled_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)`,
			t.ID, t.TripID, t.FromUserID, t.ToUserID, t.Amount.String(), t.Currency, t.ComputedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transfer: %w", err)
		}
		out[i] = t
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return out, nil
}

// ListTransfersByTrip retrieves all transfers for a trip, newest first.
func (s *SQLiteStore) ListTransfersByTrip(ctx context.Context, tripID string) ([]models.MinimalTransfer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trip_id, from_user_id, to_user_id, amount, currency, computed_at, is_settled, settled_at
		 FROM transfers WHERE trip_id = ? ORDER BY computed_at DESC, id`,
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.MinimalTransfer
	for rows.Next() {
		var t models.MinimalTransfer
		var amount string
		var settled int
		if err := rows.Scan(&t.ID, &t.TripID, &t.FromUserID, &t.ToUserID, &amount, &t.Currency,
			&t.ComputedAt, &settled, &t.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if t.Amount, err = money.Parse(amount); err != nil {
			return nil, fmt.Errorf("transfer %s: %w", t.ID, err)
		}
		t.IsSettled = settled != 0
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}
	return transfers, nil
}

// MarkTransferSettled flips the settled flag on a transfer. settledAt of
// zero means now.
func (s *SQLiteStore) MarkTransferSettled(ctx context.Context, transferID string, settledAt int64) error {
	if settledAt == 0 {
		settledAt = time.Now().Unix()
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE transfers SET is_settled = 1, settled_at = ? WHERE id = ? AND is_settled = 0",
		settledAt, transferID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark transfer settled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark transfer settled: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already settled for a useful error.
		var exists int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM transfers WHERE id = ?", transferID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("transfer not found: %s", transferID)
		}
		if err != nil {
			return fmt.Errorf("failed to check transfer existence: %w", err)
		}
		return fmt.Errorf("transfer already settled: %s", transferID)
	}
	return nil
}
