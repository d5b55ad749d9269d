package till

import (
	"testing"

	"tillpoint/backend/internal/domain"
)

func TestBreakdownApplyAndReverse(t *testing.T) {
	b := make(Breakdown)
	b.ApplyPayment("CASH", 1500)
	b.ApplyPayment("CASH", 2300)
	b.ApplyPayment("CARD", 900)

	if got := b["CASH"]; got != 3800 {
		t.Fatalf("CASH bucket = %d, want 3800", got)
	}
	if got := b.Total(); got != 4700 {
		t.Fatalf("total = %d, want 4700", got)
	}

	b.ReversePayment("CASH", 1500)
	if got := b["CASH"]; got != 2300 {
		t.Fatalf("CASH after reversal = %d, want 2300", got)
	}
}

func TestBreakdownReverseFloorsAtZero(t *testing.T) {
	b := Breakdown{"CARD": 500}
	b.ReversePayment("CARD", 900)
	if got := b["CARD"]; got != 0 {
		t.Fatalf("CARD after over-reversal = %d, want 0", got)
	}
	b.ReversePayment("QRIS", 100)
	if got := b["QRIS"]; got != 0 {
		t.Fatalf("QRIS after reversal of absent tender = %d, want 0", got)
	}
}

func TestBreakdownDefaultsToCash(t *testing.T) {
	b := make(Breakdown)
	b.ApplyPayment("", 1200)
	if got := b[domain.TenderCash]; got != 1200 {
		t.Fatalf("unnamed tender bucket = %d, want 1200 under CASH", got)
	}
}

func TestRecompute(t *testing.T) {
	txs := []domain.Transaction{
		{
			TotalCents: 1500,
			Payment:    domain.Payment{Single: &domain.TenderLine{TenderName: "CASH", AmountCents: 2000}},
		},
		{
			TotalCents: 2300,
			Payment: domain.Payment{Splits: []domain.TenderLine{
				{TenderName: "CASH", AmountCents: 1000},
				{TenderName: "CARD", AmountCents: 1300},
			}},
		},
	}

	agg := Recompute(txs)
	if agg.TransactionCount != 2 {
		t.Fatalf("count = %d, want 2", agg.TransactionCount)
	}
	if agg.TotalSalesCents != 3800 {
		t.Fatalf("total sales = %d, want 3800", agg.TotalSalesCents)
	}
	// Single tender folds the transaction total, not the cash received.
	if got := agg.Tenders["CASH"]; got != 2500 {
		t.Fatalf("CASH = %d, want 2500", got)
	}
	if got := agg.Tenders["CARD"]; got != 1300 {
		t.Fatalf("CARD = %d, want 1300", got)
	}
	if agg.Tenders.Total() != agg.TotalSalesCents {
		t.Fatalf("breakdown total %d != total sales %d", agg.Tenders.Total(), agg.TotalSalesCents)
	}
}

func TestRecomputeEmpty(t *testing.T) {
	agg := Recompute(nil)
	if agg.TransactionCount != 0 || agg.TotalSalesCents != 0 || len(agg.Tenders) != 0 {
		t.Fatalf("empty recompute not zero: %+v", agg)
	}
}
