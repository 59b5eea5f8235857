package calculator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tripledger/tripledger/internal/models"
)

func summariesFromNets(nets map[string]string) map[string]models.PersonSummary {
	out := make(map[string]models.PersonSummary, len(nets))
	for userID, net := range nets {
		out[userID] = models.PersonSummary{UserID: userID, Net: d(net)}
	}
	return out
}

func TestGreedyTransfers(t *testing.T) {
	tests := []struct {
		name         string
		nets         map[string]string
		currency     string
		validateFunc func(*testing.T, []models.MinimalTransfer)
	}{
		{
			name:     "single debtor single creditor",
			nets:     map[string]string{"alice": "50.00", "bob": "-50.00"},
			currency: "USD",
			validateFunc: func(t *testing.T, transfers []models.MinimalTransfer) {
				if len(transfers) != 1 {
					t.Fatalf("got %d transfers, want 1", len(transfers))
				}
				tr := transfers[0]
				if tr.FromUserID != "bob" || tr.ToUserID != "alice" {
					t.Errorf("transfer %s -> %s, want bob -> alice", tr.FromUserID, tr.ToUserID)
				}
				if !tr.Amount.Equal(d("50.00")) {
					t.Errorf("amount %s, want 50.00", tr.Amount)
				}
			},
		},
		{
			name: "largest debtor pays largest creditor first",
			nets: map[string]string{
				"alice": "70.00",
				"bob":   "30.00",
				"carol": "-60.00",
				"dave":  "-40.00",
			},
			currency: "USD",
			validateFunc: func(t *testing.T, transfers []models.MinimalTransfer) {
				if len(transfers) != 3 {
					t.Fatalf("got %d transfers, want 3: %v", len(transfers), transfers)
				}
				// carol (-60) pays alice (+70) 60; dave (-40) pays alice the
				// remaining 10, then bob 30.
				want := []struct {
					from, to, amount string
				}{
					{"carol", "alice", "60.00"},
					{"dave", "alice", "10.00"},
					{"dave", "bob", "30.00"},
				}
				for i, w := range want {
					tr := transfers[i]
					if tr.FromUserID != w.from || tr.ToUserID != w.to || !tr.Amount.Equal(d(w.amount)) {
						t.Errorf("transfer %d = %s -> %s %s, want %s -> %s %s",
							i, tr.FromUserID, tr.ToUserID, tr.Amount, w.from, w.to, w.amount)
					}
				}
			},
		},
		{
			name: "equal balances tie-break by user id",
			nets: map[string]string{
				"zoe":  "10.00",
				"amy":  "10.00",
				"bob":  "-10.00",
				"carl": "-10.00",
			},
			currency: "USD",
			validateFunc: func(t *testing.T, transfers []models.MinimalTransfer) {
				if len(transfers) != 2 {
					t.Fatalf("got %d transfers, want 2", len(transfers))
				}
				if transfers[0].FromUserID != "bob" || transfers[0].ToUserID != "amy" {
					t.Errorf("first transfer %s -> %s, want bob -> amy", transfers[0].FromUserID, transfers[0].ToUserID)
				}
				if transfers[1].FromUserID != "carl" || transfers[1].ToUserID != "zoe" {
					t.Errorf("second transfer %s -> %s, want carl -> zoe", transfers[1].FromUserID, transfers[1].ToUserID)
				}
			},
		},
		{
			name:     "balances under epsilon produce nothing",
			nets:     map[string]string{"alice": "0.005", "bob": "-0.005"},
			currency: "USD",
			validateFunc: func(t *testing.T, transfers []models.MinimalTransfer) {
				if len(transfers) != 0 {
					t.Fatalf("got %v, want no transfers", transfers)
				}
			},
		},
		{
			name:     "already settled",
			nets:     map[string]string{"alice": "0", "bob": "0"},
			currency: "USD",
			validateFunc: func(t *testing.T, transfers []models.MinimalTransfer) {
				if len(transfers) != 0 {
					t.Fatalf("got %v, want no transfers", transfers)
				}
			},
		},
		{
			name: "zero decimal currency rounds to whole units",
			nets: map[string]string{
				"alice": "1000",
				"bob":   "-1000",
			},
			currency: "VND",
			validateFunc: func(t *testing.T, transfers []models.MinimalTransfer) {
				if len(transfers) != 1 {
					t.Fatalf("got %d transfers, want 1", len(transfers))
				}
				if !transfers[0].Amount.Equal(d("1000")) {
					t.Errorf("amount %s, want 1000", transfers[0].Amount)
				}
				if transfers[0].Currency != "VND" {
					t.Errorf("currency %s, want VND", transfers[0].Currency)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validateFunc(t, GreedyTransfers(summariesFromNets(tt.nets), tt.currency, 1700000000))
		})
	}
}

func TestGreedyTransfersConserve(t *testing.T) {
	nets := map[string]string{
		"alice": "123.45",
		"bob":   "-23.45",
		"carol": "-78.10",
		"dave":  "-21.90",
	}

	transfers := GreedyTransfers(summariesFromNets(nets), "USD", 0)

	moved := make(map[string]decimal.Decimal)
	for _, tr := range transfers {
		if tr.Amount.Sign() <= 0 {
			t.Errorf("transfer %s -> %s has non-positive amount %s", tr.FromUserID, tr.ToUserID, tr.Amount)
		}
		moved[tr.FromUserID] = moved[tr.FromUserID].Sub(tr.Amount)
		moved[tr.ToUserID] = moved[tr.ToUserID].Add(tr.Amount)
	}

	for userID, net := range nets {
		if !moved[userID].Equal(d(net).Neg()) {
			t.Errorf("%s moves %s, want %s to settle", userID, moved[userID], d(net).Neg())
		}
	}
}
