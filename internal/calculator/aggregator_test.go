package calculator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/models"
)

func TestComputeSettlement(t *testing.T) {
	tests := []struct {
		name         string
		req          SettlementRequest
		validateFunc func(*testing.T, *SettlementResult)
	}{
		{
			name: "two person trip",
			req: SettlementRequest{
				TripID:       "trip1",
				BaseCurrency: "USD",
				Expenses: []*models.Expense{
					equalExpense("e1", "alice", "100.00", "alice", "bob"),
				},
				ComputedAt: 1700000000,
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				alice := res.Summaries["alice"]
				if !alice.TotalPaid.Equal(d("100.00")) {
					t.Errorf("alice paid %s, want 100.00", alice.TotalPaid)
				}
				if !alice.Net.Equal(d("50.00")) {
					t.Errorf("alice net %s, want 50.00", alice.Net)
				}
				bob := res.Summaries["bob"]
				if !bob.Net.Equal(d("-50.00")) {
					t.Errorf("bob net %s, want -50.00", bob.Net)
				}
				if len(res.Transfers) != 1 {
					t.Fatalf("got %d transfers, want 1", len(res.Transfers))
				}
				tr := res.Transfers[0]
				if tr.FromUserID != "bob" || tr.ToUserID != "alice" || !tr.Amount.Equal(d("50.00")) {
					t.Errorf("transfer %s -> %s %s, want bob -> alice 50.00", tr.FromUserID, tr.ToUserID, tr.Amount)
				}
				if tr.TripID != "trip1" {
					t.Errorf("transfer trip %s, want trip1", tr.TripID)
				}
			},
		},
		{
			name: "participants with no expenses still appear",
			req: SettlementRequest{
				TripID:       "trip1",
				BaseCurrency: "USD",
				Participants: []string{"alice", "bob", "carol"},
				Expenses: []*models.Expense{
					equalExpense("e1", "alice", "10.00", "alice", "bob"),
				},
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				carol, ok := res.Summaries["carol"]
				if !ok {
					t.Fatal("carol missing from summaries")
				}
				if !carol.Net.IsZero() {
					t.Errorf("carol net %s, want 0", carol.Net)
				}
			},
		},
		{
			name: "payments adjust balances",
			req: SettlementRequest{
				TripID:       "trip1",
				BaseCurrency: "USD",
				Expenses: []*models.Expense{
					equalExpense("e1", "alice", "100.00", "alice", "bob"),
				},
				Payments: []models.Payment{
					{ID: "p1", TripID: "trip1", FromUserID: "bob", ToUserID: "alice", Amount: d("50.00"), Currency: "USD"},
				},
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				for userID, s := range res.Summaries {
					if !s.Net.IsZero() {
						t.Errorf("%s net %s, want 0 after settling payment", userID, s.Net)
					}
				}
				if len(res.Transfers) != 0 {
					t.Errorf("got %v, want no transfers", res.Transfers)
				}
			},
		},
		{
			name: "greedy strategy",
			req: SettlementRequest{
				TripID:       "trip1",
				BaseCurrency: "USD",
				Strategy:     StrategyGreedy,
				Expenses: []*models.Expense{
					equalExpense("e1", "alice", "90.00", "alice", "bob", "carol"),
				},
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				if len(res.Transfers) != 2 {
					t.Fatalf("got %d transfers, want 2", len(res.Transfers))
				}
				for _, tr := range res.Transfers {
					if tr.ToUserID != "alice" || !tr.Amount.Equal(d("30.00")) {
						t.Errorf("transfer %s -> %s %s, want 30.00 to alice", tr.FromUserID, tr.ToUserID, tr.Amount)
					}
				}
			},
		},
		{
			name: "itemized expense uses stored amounts",
			req: SettlementRequest{
				TripID:       "trip1",
				BaseCurrency: "USD",
				Expenses: []*models.Expense{
					{
						ID: "e1", TripID: "trip1", PayerID: "alice",
						Currency: "USD", Amount: d("26.40"),
						Split: models.ItemizedSplit{
							Users: []string{"alice", "bob"},
							ParticipantAmounts: map[string]decimal.Decimal{
								"alice": d("15.40"),
								"bob":   d("11.00"),
							},
						},
					},
				},
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				bob := res.Summaries["bob"]
				if !bob.TotalOwed.Equal(d("11.00")) {
					t.Errorf("bob owed %s, want stored 11.00", bob.TotalOwed)
				}
				if len(res.Transfers) != 1 || !res.Transfers[0].Amount.Equal(d("11.00")) {
					t.Errorf("transfers %v, want one bob -> alice 11.00", res.Transfers)
				}
			},
		},
		{
			name: "category spending buckets and sorts",
			req: SettlementRequest{
				TripID:                  "trip1",
				BaseCurrency:            "USD",
				IncludeCategorySpending: true,
				Categories: []models.Category{
					{ID: "food", Name: "Food & Drink", Color: "#fa0", Icon: "utensils"},
				},
				Expenses: []*models.Expense{
					func() *models.Expense {
						e := equalExpense("e1", "alice", "60.00", "alice", "bob")
						e.CategoryID = "food"
						return e
					}(),
					equalExpense("e2", "alice", "20.00", "alice", "bob"),
				},
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				spending, ok := res.CategorySpending["bob"]
				if !ok {
					t.Fatal("bob missing from category spending")
				}
				if !spending.Total.Equal(d("40.00")) {
					t.Errorf("bob total %s, want 40.00", spending.Total)
				}
				if len(spending.Categories) != 2 {
					t.Fatalf("got %d categories, want 2", len(spending.Categories))
				}
				first := spending.Categories[0]
				if first.CategoryID != "food" || first.CategoryName != "Food & Drink" {
					t.Errorf("first bucket %s (%s), want food decorated with its name", first.CategoryID, first.CategoryName)
				}
				if !first.Amount.Equal(d("30.00")) {
					t.Errorf("food amount %s, want 30.00", first.Amount)
				}
				second := spending.Categories[1]
				if second.CategoryID != "uncategorized" || !second.Amount.Equal(d("10.00")) {
					t.Errorf("second bucket %s %s, want uncategorized 10.00", second.CategoryID, second.Amount)
				}
			},
		},
		{
			name: "category spending omitted unless requested",
			req: SettlementRequest{
				TripID:       "trip1",
				BaseCurrency: "USD",
				Expenses: []*models.Expense{
					equalExpense("e1", "alice", "10.00", "alice", "bob"),
				},
			},
			validateFunc: func(t *testing.T, res *SettlementResult) {
				if res.CategorySpending != nil {
					t.Errorf("got category spending %v, want nil", res.CategorySpending)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ComputeSettlement(tt.req)
			if err != nil {
				t.Fatalf("ComputeSettlement failed: %v", err)
			}
			tt.validateFunc(t, res)
		})
	}
}

func TestComputeSettlementConservation(t *testing.T) {
	req := SettlementRequest{
		TripID:       "trip1",
		BaseCurrency: "USD",
		Expenses: []*models.Expense{
			equalExpense("e1", "alice", "77.77", "alice", "bob", "carol"),
			equalExpense("e2", "bob", "33.33", "alice", "bob"),
			equalExpense("e3", "carol", "10.01", "bob", "carol"),
		},
	}

	res, err := ComputeSettlement(req)
	if err != nil {
		t.Fatalf("ComputeSettlement failed: %v", err)
	}

	sum := decimal.Zero
	for _, s := range res.Summaries {
		sum = sum.Add(s.Net)
		if !s.Net.Equal(s.TotalPaid.Sub(s.TotalOwed)) {
			t.Errorf("%s net %s != paid %s - owed %s", s.UserID, s.Net, s.TotalPaid, s.TotalOwed)
		}
	}
	if !sum.Abs().LessThan(d("0.01")) {
		t.Errorf("net balances sum to %s, want ~0", sum)
	}
}

func TestComputeSettlementRejectsNonConservingExpense(t *testing.T) {
	req := SettlementRequest{
		TripID:       "trip1",
		BaseCurrency: "USD",
		Expenses: []*models.Expense{
			{
				ID: "e1", TripID: "trip1", PayerID: "alice",
				Currency: "USD", Amount: d("30.00"),
				Split: models.ItemizedSplit{
					Users: []string{"alice", "bob"},
					ParticipantAmounts: map[string]decimal.Decimal{
						"alice": d("10.00"),
						"bob":   d("10.00"),
					},
				},
			},
		},
	}

	// Amount 30 against shares totaling 20 leaves the nets summing to +10;
	// the conservation gate must reject the trip rather than return balances
	// that do not cancel.
	_, err := ComputeSettlement(req)
	if err == nil {
		t.Fatal("expected balance conservation error")
	}
	if !errors.Is(err, ErrBalanceConservation) {
		t.Errorf("got %v, want ErrBalanceConservation", err)
	}
}

func TestComputeSettlementMismatchWarning(t *testing.T) {
	// Two expenses whose share/amount mismatches cancel each other still
	// conserve overall, so the result arrives with warnings attached.
	itemized := func(id, payer, amount, aliceShare, bobShare string) *models.Expense {
		return &models.Expense{
			ID: id, TripID: "trip1", PayerID: payer,
			Currency: "USD", Amount: d(amount),
			Split: models.ItemizedSplit{
				Users: []string{"alice", "bob"},
				ParticipantAmounts: map[string]decimal.Decimal{
					"alice": d(aliceShare),
					"bob":   d(bobShare),
				},
			},
		}
	}
	req := SettlementRequest{
		TripID:       "trip1",
		BaseCurrency: "USD",
		Expenses: []*models.Expense{
			itemized("e1", "alice", "30.00", "10.00", "10.00"),
			itemized("e2", "bob", "20.00", "15.00", "15.00"),
		},
	}

	res, err := ComputeSettlement(req)
	if err != nil {
		t.Fatalf("ComputeSettlement failed: %v", err)
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("got %d warnings, want 2: %v", len(res.Warnings), res.Warnings)
	}
	for _, w := range res.Warnings {
		if w.Code != IssueComputationMismatch {
			t.Errorf("warning code %s, want computation_mismatch", w.Code)
		}
		if w.Blocking {
			t.Error("mismatch warning must not be blocking")
		}
	}
}

func TestComputeSettlementUnknownStrategy(t *testing.T) {
	req := SettlementRequest{
		TripID:       "trip1",
		BaseCurrency: "USD",
		Strategy:     StrategyName("optimal"),
		Expenses: []*models.Expense{
			equalExpense("e1", "alice", "10.00", "alice", "bob"),
		},
	}
	if _, err := ComputeSettlement(req); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestNewStrategyDefaultsToPairwise(t *testing.T) {
	s, err := NewStrategy("")
	if err != nil {
		t.Fatalf("NewStrategy failed: %v", err)
	}
	if s.Name() != StrategyPairwise {
		t.Errorf("default strategy %s, want pairwise", s.Name())
	}
}
