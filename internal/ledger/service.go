// Package ledger is the server-side reconciliation core: it ingests
// transactions exactly once, folds completed sales into till aggregates,
// and compensates refunds without ever rolling back committed financial
// records.
package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/escpos"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/till"
	"tillpoint/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	defaultLocationID string
}

func New(repo store.Repository, defaultLocationID string) *Service {
	if defaultLocationID == "" {
		defaultLocationID = "main-store"
	}

	return &Service{
		repo:              repo,
		defaultLocationID: defaultLocationID,
	}
}

// Ingest records one transaction exactly once. Duplicates (by external id,
// else by fingerprint) short-circuit to a duplicate result without touching
// any aggregate. Completed transactions with a till reference fold into the
// till; held ones are saved untouched.
func (s *Service) Ingest(ctx context.Context, tx domain.Transaction) (domain.IngestResult, error) {
	tx.Status = domain.NormalizeStatus(tx.Status)
	if tx.LocationID == "" {
		tx.LocationID = s.defaultLocationID
	}
	tx.StaffName = strings.TrimSpace(tx.StaffName)

	if err := validateIngest(tx); err != nil {
		return domain.IngestResult{}, err
	}
	tx = normalizePayment(tx)

	// dedup in order, first match wins: external id, then the
	// {createdAt, total, till, staff} fingerprint for clients that
	// retried before ever receiving an id
	if tx.ExternalID != "" {
		existing, err := s.repo.FindTransactionByExternalID(ctx, tx.ExternalID)
		if err == nil {
			return domain.IngestResult{Status: domain.IngestStatusDuplicate, TransactionID: existing.ID}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.IngestResult{}, err
		}
	}
	if !tx.CreatedAt.IsZero() {
		existing, err := s.repo.FindTransactionByFingerprint(ctx, tx.Fingerprint())
		if err == nil {
			return domain.IngestResult{Status: domain.IngestStatusDuplicate, TransactionID: existing.ID}, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.IngestResult{}, err
		}
	}

	tx.ID = xid.New("tx")
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.InventoryUpdated = false
	tx.InventoryRestockedAt = nil

	created, err := s.repo.CreateTransaction(ctx, tx)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) && tx.ExternalID != "" {
			// concurrent double-submit lost the race to the unique index
			existing, lookupErr := s.repo.FindTransactionByExternalID(ctx, tx.ExternalID)
			if lookupErr != nil {
				return domain.IngestResult{}, lookupErr
			}
			return domain.IngestResult{Status: domain.IngestStatusDuplicate, TransactionID: existing.ID}, nil
		}
		return domain.IngestResult{}, err
	}

	if created.Status == domain.TxStatusCompleted && created.TillID != "" {
		tenders := created.Payment.EffectiveLines(created.TotalCents)
		if err := s.repo.LinkTransaction(ctx, created.TillID, created.ID, created.TotalCents, tenders); err != nil {
			// the financial record is committed; the self-healing till read
			// copes with a missed fold
			log.Printf("[ledger] WARN: fold tx=%s into till=%s: %v", created.ID, created.TillID, err)
		}
	}

	if created.Status == domain.TxStatusCompleted {
		s.decrementInventory(ctx, created)
	}

	return domain.IngestResult{Status: domain.IngestStatusAccepted, TransactionID: created.ID}, nil
}

func validateIngest(tx domain.Transaction) error {
	if tx.Status != domain.TxStatusHeld && tx.Status != domain.TxStatusCompleted {
		return fmt.Errorf("%w: status %q not ingestable", store.ErrInvalidTransaction, tx.Status)
	}
	if len(tx.Items) == 0 {
		return fmt.Errorf("%w: no line items", store.ErrInvalidTransaction)
	}
	if tx.TotalCents < 0 {
		return fmt.Errorf("%w: negative total", store.ErrInvalidTransaction)
	}
	if tx.Status == domain.TxStatusHeld {
		return nil
	}

	single := tx.Payment.Single != nil
	split := len(tx.Payment.Splits) > 0
	if single == split {
		return fmt.Errorf("%w: exactly one payment representation required", store.ErrInvalidTransaction)
	}
	if split {
		var sum int64
		for _, line := range tx.Payment.Splits {
			if line.AmountCents < 0 {
				return fmt.Errorf("%w: negative split amount", store.ErrInvalidTransaction)
			}
			sum += line.AmountCents
		}
		if tx.AmountPaidCents != 0 && sum != tx.AmountPaidCents {
			return fmt.Errorf("%w: split amounts sum %d != amount paid %d", store.ErrInvalidTransaction, sum, tx.AmountPaidCents)
		}
	}
	return nil
}

func normalizePayment(tx domain.Transaction) domain.Transaction {
	if tx.Status != domain.TxStatusCompleted {
		return tx
	}
	if len(tx.Payment.Splits) > 0 && tx.AmountPaidCents == 0 {
		for _, line := range tx.Payment.Splits {
			tx.AmountPaidCents += line.AmountCents
		}
	}
	if tx.Payment.Single != nil {
		if tx.Payment.Single.TenderName == "" {
			tx.Payment.Single.TenderName = domain.TenderCash
		}
		if tx.AmountPaidCents == 0 {
			tx.AmountPaidCents = tx.Payment.Single.AmountCents
		}
		if tx.AmountPaidCents == 0 {
			tx.AmountPaidCents = tx.TotalCents
		}
	}
	if tx.ChangeCents == 0 && tx.AmountPaidCents > tx.TotalCents {
		tx.ChangeCents = tx.AmountPaidCents - tx.TotalCents
	}
	return tx
}

// decrementInventory is best-effort and runs at most once per transaction,
// gated by the write-once inventory flag. Failures are logged, never
// propagated: financial reconciliation does not hinge on stock accuracy.
func (s *Service) decrementInventory(ctx context.Context, tx *domain.Transaction) {
	adjustments := inventoryAdjustments(tx.Items, -1)
	if len(adjustments) == 0 {
		return
	}

	claimed, err := s.repo.ClaimInventoryUpdate(ctx, tx.ID)
	if err != nil {
		log.Printf("[ledger] WARN: claim inventory update tx=%s: %v", tx.ID, err)
		return
	}
	if !claimed {
		return
	}
	if err := s.repo.AdjustStock(ctx, tx.LocationID, adjustments); err != nil {
		log.Printf("[ledger] WARN: decrement stock tx=%s: %v", tx.ID, err)
	}
}

func inventoryAdjustments(items []domain.LineItem, sign int) []domain.StockAdjustment {
	adjustments := make([]domain.StockAdjustment, 0, len(items))
	for _, item := range items {
		if item.ProductRef == "" || item.Qty <= 0 {
			continue
		}
		adjustments = append(adjustments, domain.StockAdjustment{ProductRef: item.ProductRef, Qty: sign * item.Qty})
	}
	return adjustments
}

// Till reads a till with self-healed aggregates: when any transactions are
// linked, the breakdown, total and count are recomputed from the linked
// set instead of trusting the stored running figures.
func (s *Service) Till(ctx context.Context, id string) (domain.Till, error) {
	t, err := s.repo.GetTill(ctx, id)
	if err != nil {
		return domain.Till{}, err
	}

	if len(t.TransactionIDs) > 0 {
		txs, err := s.repo.ListTransactionsByIDs(ctx, t.TransactionIDs)
		if err != nil {
			return domain.Till{}, err
		}
		agg := till.Recompute(txs)
		t.TotalSalesCents = agg.TotalSalesCents
		t.TransactionCount = agg.TransactionCount
		t.TenderBreakdown = agg.Tenders
	}
	if t.TenderBreakdown == nil {
		t.TenderBreakdown = map[string]int64{}
	}
	return *t, nil
}

func (s *Service) OpenTill(ctx context.Context, req domain.TillOpenRequest) (domain.Till, error) {
	req.StaffName = strings.TrimSpace(req.StaffName)
	if req.StaffName == "" || req.OpeningBalanceCents < 0 {
		return domain.Till{}, store.ErrInvalidTransaction
	}
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}

	t := domain.Till{
		ID:                  xid.New("till"),
		LocationID:          req.LocationID,
		StaffName:           req.StaffName,
		OpeningBalanceCents: req.OpeningBalanceCents,
		Status:              domain.TillStatusOpen,
		TransactionIDs:      []string{},
		TenderBreakdown:     map[string]int64{},
		OpenedAt:            time.Now().UTC(),
	}

	created, err := s.repo.CreateTill(ctx, t)
	if err != nil {
		return domain.Till{}, err
	}
	return *created, nil
}

// CloseTill freezes the open till at a location. Closed aggregates are
// final; later refunds never reach back into them.
func (s *Service) CloseTill(ctx context.Context, req domain.TillCloseRequest) (domain.Till, error) {
	if req.LocationID == "" {
		req.LocationID = s.defaultLocationID
	}

	closed, err := s.repo.CloseTill(ctx, req.LocationID, time.Now().UTC())
	if err != nil {
		return domain.Till{}, err
	}
	return *closed, nil
}

// Refund performs the only legal completed-to-refunded transition, then runs
// each compensation step independently. A step failure is reported, never
// fatal, and never rolls back the committed status change.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	tx, err := s.repo.FindTransactionByID(ctx, req.TransactionID)
	if err != nil {
		return domain.RefundResult{}, err
	}

	switch tx.Status {
	case domain.TxStatusRefunded:
		return domain.RefundResult{Status: domain.RefundStatusAlreadyRefunded, TransactionID: tx.ID}, nil
	case domain.TxStatusHeld:
		return domain.RefundResult{Status: domain.RefundStatusNotApplicable, TransactionID: tx.ID}, nil
	case domain.TxStatusCompleted:
		// proceed
	default:
		return domain.RefundResult{Status: domain.RefundStatusNotApplicable, TransactionID: tx.ID}, nil
	}

	refundedBy := "system"
	if actor, ok := ActorFromContext(ctx); ok {
		refundedBy = actor.Username
	}

	refunded, err := s.repo.MarkRefunded(ctx, tx.ID, req.Reason, refundedBy, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) {
			// lost a race against another refund of the same transaction
			return domain.RefundResult{Status: domain.RefundStatusAlreadyRefunded, TransactionID: tx.ID}, nil
		}
		return domain.RefundResult{}, err
	}

	result := domain.RefundResult{
		Status:        domain.RefundStatusRefunded,
		TransactionID: refunded.ID,
		Compensation: []domain.CompensationStep{
			s.restockInventory(ctx, refunded),
			s.reverseTill(ctx, refunded),
		},
	}
	return result, nil
}

func (s *Service) restockInventory(ctx context.Context, tx *domain.Transaction) domain.CompensationStep {
	step := domain.CompensationStep{Step: "inventory_restock"}

	if !tx.InventoryUpdated {
		step.Status = domain.CompensationSkipped
		step.Reason = "inventory never decremented"
		return step
	}
	claimed, err := s.repo.ClaimInventoryRestock(ctx, tx.ID, time.Now().UTC())
	if err != nil {
		log.Printf("[ledger] WARN: claim inventory restock tx=%s: %v", tx.ID, err)
		step.Status = domain.CompensationFailed
		step.Reason = err.Error()
		return step
	}
	if !claimed {
		step.Status = domain.CompensationSkipped
		step.Reason = "already restocked"
		return step
	}

	if err := s.repo.AdjustStock(ctx, tx.LocationID, inventoryAdjustments(tx.Items, 1)); err != nil {
		log.Printf("[ledger] WARN: restock tx=%s: %v", tx.ID, err)
		step.Status = domain.CompensationFailed
		step.Reason = err.Error()
		return step
	}
	step.Status = domain.CompensationOK
	return step
}

func (s *Service) reverseTill(ctx context.Context, tx *domain.Transaction) domain.CompensationStep {
	step := domain.CompensationStep{Step: "till_reversal"}

	if tx.TillID == "" {
		step.Status = domain.CompensationSkipped
		step.Reason = "no till reference"
		return step
	}

	tenders := tx.Payment.EffectiveLines(tx.TotalCents)
	err := s.repo.UnlinkTransaction(ctx, tx.TillID, tx.ID, tx.TotalCents, tenders)
	switch {
	case err == nil:
		step.Status = domain.CompensationOK
	case errors.Is(err, store.ErrTillClosed):
		step.Status = domain.CompensationSkippedClosed
		step.Reason = "till already closed, finalized reconciliation untouched"
	case errors.Is(err, store.ErrNotFound):
		step.Status = domain.CompensationSkipped
		step.Reason = "transaction not linked to till"
	default:
		log.Printf("[ledger] WARN: till reversal tx=%s till=%s: %v", tx.ID, tx.TillID, err)
		step.Status = domain.CompensationFailed
		step.Reason = err.Error()
	}
	return step
}

// Recall returns a transaction's cart contents for re-entry into a new
// sale. Read-only by contract.
func (s *Service) Recall(ctx context.Context, txID string) (domain.RecallResponse, error) {
	tx, err := s.repo.FindTransactionByID(ctx, txID)
	if err != nil {
		return domain.RecallResponse{}, err
	}

	return domain.RecallResponse{
		TransactionID: tx.ID,
		Status:        tx.Status,
		Items:         tx.Items,
		SubtotalCents: tx.SubtotalCents,
		DiscountCents: tx.DiscountCents,
		TaxCents:      tx.TaxCents,
		TotalCents:    tx.TotalCents,
	}, nil
}

func (s *Service) Receipt(ctx context.Context, txID string) (domain.ReceiptResponse, error) {
	tx, err := s.repo.FindTransactionByID(ctx, txID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	payload, preview := escpos.Receipt(*tx)
	return domain.ReceiptResponse{
		TransactionID: tx.ID,
		EscposBase64:  base64.StdEncoding.EncodeToString(payload),
		PreviewText:   preview,
		FileName:      fmt.Sprintf("receipt-%s.bin", tx.ID),
	}, nil
}

// SyncBatch replays a terminal's queued transactions through Ingest and
// reports a per-entry verdict. A rejected entry never blocks the entries
// behind it.
func (s *Service) SyncBatch(ctx context.Context, req domain.SyncBatchRequest) (domain.SyncBatchResponse, error) {
	resp := domain.SyncBatchResponse{
		EnvelopeID: req.EnvelopeID,
		Statuses:   make([]domain.SyncBatchStatus, 0, len(req.Transactions)),
	}

	for _, entry := range req.Transactions {
		tx := entry.Transaction
		if tx.ExternalID == "" {
			tx.ExternalID = entry.ExternalID
		}
		if tx.TerminalID == "" {
			tx.TerminalID = req.TerminalID
		}

		result, err := s.Ingest(ctx, tx)
		if err != nil {
			if errors.Is(err, store.ErrInvalidTransaction) {
				resp.Statuses = append(resp.Statuses, domain.SyncBatchStatus{
					ExternalID: entry.ExternalID,
					Status:     domain.IngestStatusRejected,
					Reason:     err.Error(),
				})
				continue
			}
			return domain.SyncBatchResponse{}, err
		}
		resp.Statuses = append(resp.Statuses, domain.SyncBatchStatus{
			ExternalID:    entry.ExternalID,
			Status:        result.Status,
			TransactionID: result.TransactionID,
		})
	}
	return resp, nil
}
