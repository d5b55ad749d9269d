package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
)

func TestLinkTransactionFoldsOnce(t *testing.T) {
	databaseURL := os.Getenv("TILLPOINT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TILLPOINT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	tillID := fmt.Sprintf("till-link-it-%d", stamp)
	txID := fmt.Sprintf("tx-link-it-%d", stamp)
	locationID := "main-store"

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM till_transactions WHERE till_id = $1`, tillID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM till_tenders WHERE till_id = $1`, tillID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_tenders WHERE transaction_id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, txID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM tills WHERE id = $1`, tillID)
	})

	now := time.Now().UTC()
	if _, err := s.CreateTill(ctx, domain.Till{
		ID:                  tillID,
		LocationID:          locationID,
		StaffName:           "it-staff",
		OpeningBalanceCents: 5000,
		Status:              domain.TillStatusOpen,
		OpenedAt:            now,
	}); err != nil {
		t.Fatalf("create till: %v", err)
	}

	if _, err := s.CreateTransaction(ctx, domain.Transaction{
		ID:         txID,
		LocationID: locationID,
		TillID:     tillID,
		StaffName:  "it-staff",
		TotalCents: 1500,
		Status:     domain.TxStatusCompleted,
		Payment:    domain.Payment{Single: &domain.TenderLine{TenderName: "CASH", AmountCents: 1500}},
		CreatedAt:  now,
	}); err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	tenders := []domain.TenderLine{{TenderName: "CASH", AmountCents: 1500}}
	if err := s.LinkTransaction(ctx, tillID, txID, 1500, tenders); err != nil {
		t.Fatalf("link transaction: %v", err)
	}
	// second link must be a no-op, the conflict guard keeps the fold from running twice
	if err := s.LinkTransaction(ctx, tillID, txID, 1500, tenders); err != nil {
		t.Fatalf("relink transaction: %v", err)
	}

	till, err := s.GetTill(ctx, tillID)
	if err != nil {
		t.Fatalf("get till: %v", err)
	}
	if till.TotalSalesCents != 1500 {
		t.Fatalf("expected total sales 1500 after duplicate link, got %d", till.TotalSalesCents)
	}
	if till.TransactionCount != 1 {
		t.Fatalf("expected transaction count 1, got %d", till.TransactionCount)
	}
	if till.TenderBreakdown["CASH"] != 1500 {
		t.Fatalf("expected CASH bucket 1500, got %d", till.TenderBreakdown["CASH"])
	}

	if err := s.UnlinkTransaction(ctx, tillID, txID, 1500, tenders); err != nil {
		t.Fatalf("unlink transaction: %v", err)
	}
	till, err = s.GetTill(ctx, tillID)
	if err != nil {
		t.Fatalf("get till after unlink: %v", err)
	}
	if till.TotalSalesCents != 0 || till.TransactionCount != 0 {
		t.Fatalf("expected empty aggregates after unlink, got total=%d count=%d", till.TotalSalesCents, till.TransactionCount)
	}
}
