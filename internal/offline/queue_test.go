package offline

import (
	"context"
	"testing"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/kv"
)

func pendingEntry(externalID string, totalCents int64) domain.PendingTransaction {
	return domain.PendingTransaction{
		ExternalID: externalID,
		Transaction: domain.Transaction{
			ExternalID: externalID,
			StaffName:  "sari",
			Status:     domain.TxStatusCompleted,
			TotalCents: totalCents,
			Items:      []domain.LineItem{{Name: "Air Mineral 600ml", UnitPriceCents: totalCents, Qty: 1}},
			Payment:    domain.Payment{Single: &domain.TenderLine{TenderName: "CASH", AmountCents: totalCents}},
		},
	}
}

func TestQueueEnqueueDrainOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemoryStore())

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, pendingEntry(id, 100)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	entries := q.Drain(ctx)
	if len(entries) != 3 {
		t.Fatalf("drained %d entries, want 3", len(entries))
	}
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].ExternalID != want {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].ExternalID, want)
		}
	}

	// drain is non-destructive
	if got := q.Len(ctx); got != 3 {
		t.Fatalf("len after drain = %d, want 3", got)
	}
}

func TestQueueRemoveSynced(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemoryStore())
	_ = q.Enqueue(ctx, pendingEntry("a", 100))
	_ = q.Enqueue(ctx, pendingEntry("b", 200))
	_ = q.Enqueue(ctx, pendingEntry("c", 300))

	if err := q.RemoveSynced(ctx, map[string]struct{}{"a": {}, "c": {}}); err != nil {
		t.Fatalf("remove synced: %v", err)
	}
	entries := q.Drain(ctx)
	if len(entries) != 1 || entries[0].ExternalID != "b" {
		t.Fatalf("remaining = %+v, want only b", entries)
	}
}

func TestQueueReplaceAllEmptyClears(t *testing.T) {
	ctx := context.Background()
	blobs := kv.NewMemoryStore()
	q := NewQueue(blobs)
	_ = q.Enqueue(ctx, pendingEntry("a", 100))

	if err := q.ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("replace all: %v", err)
	}
	if got := q.Len(ctx); got != 0 {
		t.Fatalf("len = %d, want 0", got)
	}
	if _, ok, _ := blobs.Get(ctx, defaultQueueKey); ok {
		t.Fatal("blob still present after clearing")
	}
}

func TestQueueCorruptBlobStartsEmpty(t *testing.T) {
	ctx := context.Background()
	blobs := kv.NewMemoryStore()
	if err := blobs.Set(ctx, defaultQueueKey, "{not json"); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	q := NewQueue(blobs)
	if entries := q.Drain(ctx); len(entries) != 0 {
		t.Fatalf("corrupt blob drained %d entries, want 0", len(entries))
	}

	// the queue stays usable afterwards
	if err := q.Enqueue(ctx, pendingEntry("a", 100)); err != nil {
		t.Fatalf("enqueue after corruption: %v", err)
	}
	if got := q.Len(ctx); got != 1 {
		t.Fatalf("len = %d, want 1", got)
	}
}
