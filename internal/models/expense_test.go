package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestEqualSplitShares(t *testing.T) {
	split := EqualSplit{Users: []string{"alice", "bob", "carol", "dave"}}
	shares, err := split.Shares(d("100.00"))
	if err != nil {
		t.Fatalf("Shares failed: %v", err)
	}
	for user, share := range shares {
		if !share.Equal(d("25.00")) {
			t.Errorf("%s share %s, want 25.00", user, share)
		}
	}

	if _, err := (EqualSplit{}).Shares(d("10")); !errors.Is(err, ErrNoParticipants) {
		t.Errorf("got %v, want ErrNoParticipants", err)
	}
}

func TestWeightedSplitShares(t *testing.T) {
	split := WeightedSplit{
		Users:   []string{"alice", "bob", "carol"},
		Weights: map[string]decimal.Decimal{"alice": d("2"), "bob": d("1"), "carol": d("1")},
	}
	shares, err := split.Shares(d("100.00"))
	if err != nil {
		t.Fatalf("Shares failed: %v", err)
	}
	if !shares["alice"].Equal(d("50")) {
		t.Errorf("alice share %s, want 50", shares["alice"])
	}
	if !shares["bob"].Equal(d("25")) {
		t.Errorf("bob share %s, want 25", shares["bob"])
	}

	zero := WeightedSplit{
		Users:   []string{"alice"},
		Weights: map[string]decimal.Decimal{"alice": d("0")},
	}
	if _, err := zero.Shares(d("10")); !errors.Is(err, ErrZeroWeights) {
		t.Errorf("got %v, want ErrZeroWeights", err)
	}
}

func TestItemizedSplitSharesIgnoreTotal(t *testing.T) {
	split := ItemizedSplit{
		Users: []string{"alice", "bob"},
		ParticipantAmounts: map[string]decimal.Decimal{
			"alice": d("13.20"),
			"bob":   d("13.20"),
		},
	}

	// The stored amounts are canonical; the total argument is never used to
	// recompute them.
	shares, err := split.Shares(d("999.99"))
	if err != nil {
		t.Fatalf("Shares failed: %v", err)
	}
	if !shares["alice"].Equal(d("13.20")) || !shares["bob"].Equal(d("13.20")) {
		t.Errorf("shares %v, want stored 13.20 each", shares)
	}
}

func TestExpenseValidate(t *testing.T) {
	tests := []struct {
		name    string
		expense Expense
		wantErr bool
	}{
		{
			name: "valid",
			expense: Expense{
				PayerID: "alice",
				Amount:  d("10.00"),
				Split:   EqualSplit{Users: []string{"alice", "bob"}},
			},
		},
		{
			name: "missing payer",
			expense: Expense{
				Amount: d("10.00"),
				Split:  EqualSplit{Users: []string{"alice"}},
			},
			wantErr: true,
		},
		{
			name:    "missing split",
			expense: Expense{PayerID: "alice", Amount: d("10.00")},
			wantErr: true,
		},
		{
			name: "no participants",
			expense: Expense{
				PayerID: "alice",
				Amount:  d("10.00"),
				Split:   EqualSplit{},
			},
			wantErr: true,
		},
		{
			name: "negative amount",
			expense: Expense{
				PayerID: "alice",
				Amount:  d("-1.00"),
				Split:   EqualSplit{Users: []string{"alice"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.expense.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
