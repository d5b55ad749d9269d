package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/kv"
	"tillpoint/backend/internal/ledger"
	"tillpoint/backend/internal/store/memory"
)

type scriptedIngestor struct {
	mu      sync.Mutex
	fail    map[string]error
	seen    []string
	started chan struct{}
	release chan struct{}
}

func (f *scriptedIngestor) Ingest(_ context.Context, tx domain.Transaction) (domain.IngestResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, tx.ExternalID)
	err := f.fail[tx.ExternalID]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	if err != nil {
		return domain.IngestResult{}, err
	}
	return domain.IngestResult{Status: domain.IngestStatusAccepted, TransactionID: "tx-" + tx.ExternalID}, nil
}

func TestSyncRetainsOnlyTransientFailures(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemoryStore())
	_ = q.Enqueue(ctx, pendingEntry("ok-1", 100))
	_ = q.Enqueue(ctx, pendingEntry("flaky", 200))
	_ = q.Enqueue(ctx, pendingEntry("ok-2", 300))
	_ = q.Enqueue(ctx, pendingEntry("bad", 400))

	ingest := &scriptedIngestor{fail: map[string]error{
		"flaky": errors.New("connection refused"),
		"bad":   &RejectionError{Reason: "no line items"},
	}}
	s := NewSyncer(q, ingest)

	report := s.SyncAll(ctx)
	if report.Attempted != 4 {
		t.Fatalf("attempted = %d, want 4", report.Attempted)
	}
	if report.Synced != 2 {
		t.Fatalf("synced = %d, want 2", report.Synced)
	}
	if report.Retained != 1 {
		t.Fatalf("retained = %d, want 1", report.Retained)
	}
	if len(report.Rejected) != 1 || report.Rejected[0].ExternalID != "bad" {
		t.Fatalf("rejected = %+v, want bad", report.Rejected)
	}

	// the transient failure did not block the entries behind it
	if len(ingest.seen) != 4 {
		t.Fatalf("ingestor saw %d entries, want 4", len(ingest.seen))
	}

	remaining := q.Drain(ctx)
	if len(remaining) != 1 || remaining[0].ExternalID != "flaky" {
		t.Fatalf("queue after sync = %+v, want only flaky", remaining)
	}
}

func TestSyncEmptyQueueNoNetwork(t *testing.T) {
	q := NewQueue(kv.NewMemoryStore())
	ingest := &scriptedIngestor{}
	s := NewSyncer(q, ingest)

	report := s.SyncAll(context.Background())
	if report.Attempted != 0 {
		t.Fatalf("attempted = %d, want 0", report.Attempted)
	}
	if len(ingest.seen) != 0 {
		t.Fatalf("ingestor called %d times on empty queue", len(ingest.seen))
	}
}

func TestTrySyncCoalescesConcurrentDrains(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(kv.NewMemoryStore())
	_ = q.Enqueue(ctx, pendingEntry("slow", 100))

	ingest := &scriptedIngestor{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := NewSyncer(q, ingest)

	done := make(chan Report, 1)
	go func() {
		report, _ := s.TrySync(ctx)
		done <- report
	}()

	<-ingest.started

	// a second drain while the first is in flight is dropped, not queued
	if _, ok := s.TrySync(ctx); ok {
		t.Fatal("second TrySync ran while first was in flight")
	}

	close(ingest.release)
	select {
	case report := <-done:
		if report.Synced != 1 {
			t.Fatalf("synced = %d, want 1", report.Synced)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first drain did not finish")
	}

	// after it completes the guard is released
	if _, ok := s.TrySync(ctx); !ok {
		t.Fatal("TrySync still blocked after drain finished")
	}
}

func TestSyncDuplicateEnqueueAgainstLedger(t *testing.T) {
	ctx := context.Background()
	svc := ledger.New(memory.New(), "main-store")

	opened, err := svc.OpenTill(ctx, domain.TillOpenRequest{StaffName: "sari", OpeningBalanceCents: 0})
	if err != nil {
		t.Fatalf("open till: %v", err)
	}

	entry := pendingEntry("abc123", 1500)
	entry.Transaction.TillID = opened.ID
	entry.Transaction.CreatedAt = time.Now().UTC()

	q := NewQueue(kv.NewMemoryStore())
	// the terminal saved the same sale twice while offline
	_ = q.Enqueue(ctx, entry)
	_ = q.Enqueue(ctx, entry)

	s := NewSyncer(q, svc)
	report := s.SyncAll(ctx)
	if report.Synced != 1 {
		t.Fatalf("synced = %d, want 1", report.Synced)
	}
	if report.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", report.Duplicates)
	}
	if report.Retained != 0 {
		t.Fatalf("retained = %d, want 0", report.Retained)
	}
	if got := q.Len(ctx); got != 0 {
		t.Fatalf("queue len = %d, want 0", got)
	}

	read, err := svc.Till(ctx, opened.ID)
	if err != nil {
		t.Fatalf("read till: %v", err)
	}
	if read.TotalSalesCents != 1500 || read.TransactionCount != 1 {
		t.Fatalf("till folded twice: total=%d count=%d", read.TotalSalesCents, read.TransactionCount)
	}
}
