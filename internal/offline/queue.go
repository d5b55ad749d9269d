// Package offline keeps a terminal selling while the backend is
// unreachable: completed sales land in a durable local queue and a sync
// engine drains them in order once connectivity returns.
package offline

import (
	"context"
	"encoding/json"
	"log"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/kv"
)

const defaultQueueKey = "tillpoint:pending-transactions"

// Queue persists pending transactions as one JSON blob in a kv.BlobStore.
// It is not safe for concurrent use; the sync engine serializes access.
type Queue struct {
	blobs kv.BlobStore
	key   string
}

func NewQueue(blobs kv.BlobStore) *Queue {
	return &Queue{blobs: blobs, key: defaultQueueKey}
}

func (q *Queue) Enqueue(ctx context.Context, entry domain.PendingTransaction) error {
	entries := q.load(ctx)
	entries = append(entries, entry)
	return q.save(ctx, entries)
}

// Drain returns the pending entries in enqueue order without removing
// them. The caller reconciles and rewrites via ReplaceAll.
func (q *Queue) Drain(ctx context.Context) []domain.PendingTransaction {
	return q.load(ctx)
}

func (q *Queue) Len(ctx context.Context) int {
	return len(q.load(ctx))
}

// RemoveSynced drops every entry whose external id is in the given set.
func (q *Queue) RemoveSynced(ctx context.Context, externalIDs map[string]struct{}) error {
	entries := q.load(ctx)
	kept := entries[:0]
	for _, entry := range entries {
		if _, ok := externalIDs[entry.ExternalID]; ok {
			continue
		}
		kept = append(kept, entry)
	}
	return q.save(ctx, kept)
}

func (q *Queue) ReplaceAll(ctx context.Context, entries []domain.PendingTransaction) error {
	return q.save(ctx, entries)
}

// load treats any storage or parse failure as an empty queue. A corrupt
// blob must never wedge the terminal; the damage is logged and the queue
// starts over.
func (q *Queue) load(ctx context.Context) []domain.PendingTransaction {
	raw, ok, err := q.blobs.Get(ctx, q.key)
	if err != nil {
		log.Printf("[offline-queue] WARN: read pending blob: %v", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var entries []domain.PendingTransaction
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("[offline-queue] WARN: corrupt pending blob, starting empty: %v", err)
		return nil
	}
	return entries
}

func (q *Queue) save(ctx context.Context, entries []domain.PendingTransaction) error {
	if len(entries) == 0 {
		return q.blobs.Delete(ctx, q.key)
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return q.blobs.Set(ctx, q.key, string(payload))
}
