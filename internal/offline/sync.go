package offline

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

// Ingestor submits one transaction to the ledger. The in-process service
// and the HTTP client both satisfy it.
type Ingestor interface {
	Ingest(ctx context.Context, tx domain.Transaction) (domain.IngestResult, error)
}

// RejectionError marks a server-side permanent rejection. Entries failing
// this way are dropped from the queue; retrying would never succeed.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "transaction rejected: " + e.Reason
}

type RejectedEntry struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

type Report struct {
	Attempted  int             `json:"attempted"`
	Synced     int             `json:"synced"`
	Duplicates int             `json:"duplicates"`
	Retained   int             `json:"retained"`
	Rejected   []RejectedEntry `json:"rejected,omitempty"`
}

// Syncer drains the pending queue against an ingestor. Entries are
// submitted in enqueue order; a transient failure keeps its entry queued
// but never blocks the entries behind it. The queue is rewritten exactly
// once per drain.
type Syncer struct {
	queue  *Queue
	ingest Ingestor
	busy   atomic.Bool
}

func NewSyncer(queue *Queue, ingest Ingestor) *Syncer {
	return &Syncer{queue: queue, ingest: ingest}
}

// TrySync runs one drain unless another is already in flight, in which
// case the request is dropped. Connectivity flapping must not stack up
// drains; the next transition or manual trigger retries.
func (s *Syncer) TrySync(ctx context.Context) (Report, bool) {
	if !s.busy.CompareAndSwap(false, true) {
		return Report{}, false
	}
	defer s.busy.Store(false)
	return s.syncAll(ctx), true
}

// SyncAll drains unconditionally, waiting its turn behind nothing. Used
// for manual triggers where dropping would surprise the operator.
func (s *Syncer) SyncAll(ctx context.Context) Report {
	s.busy.Store(true)
	defer s.busy.Store(false)
	return s.syncAll(ctx)
}

func (s *Syncer) syncAll(ctx context.Context) Report {
	entries := s.queue.Drain(ctx)
	if len(entries) == 0 {
		return Report{}
	}

	report := Report{Attempted: len(entries)}
	retained := make([]domain.PendingTransaction, 0, len(entries))

	for _, entry := range entries {
		tx := entry.Transaction
		if tx.ExternalID == "" {
			tx.ExternalID = entry.ExternalID
		}

		result, err := s.ingest.Ingest(ctx, tx)
		if err == nil {
			if result.Status == domain.IngestStatusDuplicate {
				report.Duplicates++
			} else {
				report.Synced++
			}
			continue
		}

		var rejection *RejectionError
		if errors.As(err, &rejection) {
			report.Rejected = append(report.Rejected, RejectedEntry{ExternalID: entry.ExternalID, Reason: rejection.Reason})
			log.Printf("[offline-sync] WARN: entry %s rejected, dropping: %s", entry.ExternalID, rejection.Reason)
			continue
		}
		if errors.Is(err, store.ErrInvalidTransaction) {
			report.Rejected = append(report.Rejected, RejectedEntry{ExternalID: entry.ExternalID, Reason: err.Error()})
			log.Printf("[offline-sync] WARN: entry %s invalid, dropping: %v", entry.ExternalID, err)
			continue
		}

		// transient: keep the entry, keep going with the rest
		retained = append(retained, entry)
		log.Printf("[offline-sync] WARN: entry %s retained after transient failure: %v", entry.ExternalID, err)
	}

	report.Retained = len(retained)
	if err := s.queue.ReplaceAll(ctx, retained); err != nil {
		log.Printf("[offline-sync] WARN: rewrite pending queue: %v", err)
	}
	return report
}
