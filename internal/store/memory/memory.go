package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
	"tillpoint/backend/internal/till"
)

type Store struct {
	mu                     sync.RWMutex
	transactionsByID       map[string]*domain.Transaction
	transactionsByExternal map[string]*domain.Transaction
	tillsByID              map[string]*domain.Till
	openTillByLocation     map[string]string
	inventory              map[string]map[string]int
}

func New() *Store {
	return &Store{
		transactionsByID:       map[string]*domain.Transaction{},
		transactionsByExternal: map[string]*domain.Transaction{},
		tillsByID:              map[string]*domain.Till{},
		openTillByLocation:     map[string]string{},
		inventory:              map[string]map[string]int{},
	}
}

// NewSeeded returns a store with a small stock position for dev/demo mode.
func NewSeeded() *Store {
	s := New()
	s.inventory["main-store"] = map[string]int{
		"PRD-MIE-01":   40,
		"PRD-TELUR-01": 30,
		"PRD-SUSU-01":  25,
		"PRD-KOPI-01":  60,
		"PRD-AIR-01":   80,
	}
	return s
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ExternalID != "" {
		if _, exists := s.transactionsByExternal[tx.ExternalID]; exists {
			return nil, store.ErrDuplicate
		}
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrDuplicate
	}

	stored := cloneTransaction(&tx)
	s.transactionsByID[stored.ID] = stored
	if stored.ExternalID != "" {
		s.transactionsByExternal[stored.ExternalID] = stored
	}
	return cloneTransaction(stored), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByExternalID(_ context.Context, externalID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByExternal[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) FindTransactionByFingerprint(_ context.Context, fp domain.Fingerprint) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactionsByID {
		if tx.CreatedAt.Equal(fp.CreatedAt) &&
			tx.TotalCents == fp.TotalCents &&
			tx.TillID == fp.TillID &&
			tx.StaffName == fp.StaffName {
			return cloneTransaction(tx), nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTransactionsByIDs(_ context.Context, ids []string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := s.transactionsByID[id]; ok {
			out = append(out, *cloneTransaction(tx))
		}
	}
	return out, nil
}

func (s *Store) MarkRefunded(_ context.Context, id string, reason string, refundedBy string, at time.Time) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if tx.Status != domain.TxStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}
	tx.Status = domain.TxStatusRefunded
	tx.SubStatus = domain.SubStatusVoid
	tx.RefundReason = reason
	tx.RefundedBy = refundedBy
	refundedAt := at
	tx.RefundedAt = &refundedAt
	return cloneTransaction(tx), nil
}

func (s *Store) CreateTill(_ context.Context, t domain.Till) (*domain.Till, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if openID, exists := s.openTillByLocation[t.LocationID]; exists {
		if open, ok := s.tillsByID[openID]; ok && open.Status == domain.TillStatusOpen {
			return nil, store.ErrTillAlreadyOpen
		}
	}

	stored := cloneTill(&t)
	s.tillsByID[stored.ID] = stored
	s.openTillByLocation[stored.LocationID] = stored.ID
	return cloneTill(stored), nil
}

func (s *Store) GetTill(_ context.Context, id string) (*domain.Till, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tillsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTill(t), nil
}

func (s *Store) GetOpenTill(_ context.Context, locationID string) (*domain.Till, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.openTillByLocation[locationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t, ok := s.tillsByID[id]
	if !ok || t.Status != domain.TillStatusOpen {
		return nil, store.ErrNotFound
	}
	return cloneTill(t), nil
}

func (s *Store) CloseTill(_ context.Context, locationID string, at time.Time) (*domain.Till, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.openTillByLocation[locationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	t, ok := s.tillsByID[id]
	if !ok || t.Status != domain.TillStatusOpen {
		return nil, store.ErrNotFound
	}
	t.Status = domain.TillStatusClosed
	closedAt := at
	t.ClosedAt = &closedAt
	delete(s.openTillByLocation, locationID)
	return cloneTill(t), nil
}

func (s *Store) LinkTransaction(_ context.Context, tillID string, txID string, totalCents int64, tenders []domain.TenderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tillsByID[tillID]
	if !ok {
		return store.ErrNotFound
	}
	if slices.Contains(t.TransactionIDs, txID) {
		return nil
	}
	t.TransactionIDs = append(t.TransactionIDs, txID)
	t.TotalSalesCents += totalCents
	t.TransactionCount++
	if t.TenderBreakdown == nil {
		t.TenderBreakdown = map[string]int64{}
	}
	breakdown := till.Breakdown(t.TenderBreakdown)
	for _, line := range tenders {
		breakdown.ApplyPayment(line.TenderName, line.AmountCents)
	}
	return nil
}

func (s *Store) UnlinkTransaction(_ context.Context, tillID string, txID string, totalCents int64, tenders []domain.TenderLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tillsByID[tillID]
	if !ok {
		return store.ErrNotFound
	}
	if t.Status != domain.TillStatusOpen {
		return store.ErrTillClosed
	}
	idx := slices.Index(t.TransactionIDs, txID)
	if idx < 0 {
		return store.ErrNotFound
	}
	t.TransactionIDs = slices.Delete(t.TransactionIDs, idx, idx+1)
	t.TotalSalesCents = floorZero(t.TotalSalesCents - totalCents)
	t.TransactionCount = floorZero(t.TransactionCount - 1)
	breakdown := till.Breakdown(t.TenderBreakdown)
	for _, line := range tenders {
		breakdown.ReversePayment(line.TenderName, line.AmountCents)
	}
	return nil
}

func (s *Store) ClaimInventoryUpdate(_ context.Context, txID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return false, store.ErrNotFound
	}
	if tx.InventoryUpdated {
		return false, nil
	}
	tx.InventoryUpdated = true
	return true, nil
}

func (s *Store) ClaimInventoryRestock(_ context.Context, txID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return false, store.ErrNotFound
	}
	if !tx.InventoryUpdated || tx.InventoryRestockedAt != nil {
		return false, nil
	}
	restockedAt := at
	tx.InventoryRestockedAt = &restockedAt
	return true, nil
}

func (s *Store) AdjustStock(_ context.Context, locationID string, adjustments []domain.StockAdjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stocks, ok := s.inventory[locationID]
	if !ok {
		stocks = map[string]int{}
		s.inventory[locationID] = stocks
	}
	for _, adj := range adjustments {
		next := stocks[adj.ProductRef] + adj.Qty
		if next < 0 {
			next = 0
		}
		stocks[adj.ProductRef] = next
	}
	return nil
}

func (s *Store) GetStockMap(_ context.Context, locationID string, productRefs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(productRefs))
	stocks := s.inventory[locationID]
	for _, ref := range productRefs {
		out[ref] = stocks[ref]
	}
	return out, nil
}

func floorZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	out := *src
	out.Items = slices.Clone(src.Items)
	out.Payment.Splits = slices.Clone(src.Payment.Splits)
	if src.Payment.Single != nil {
		single := *src.Payment.Single
		out.Payment.Single = &single
	}
	if src.RefundedAt != nil {
		at := *src.RefundedAt
		out.RefundedAt = &at
	}
	if src.InventoryRestockedAt != nil {
		at := *src.InventoryRestockedAt
		out.InventoryRestockedAt = &at
	}
	return &out
}

func cloneTill(src *domain.Till) *domain.Till {
	out := *src
	out.TransactionIDs = slices.Clone(src.TransactionIDs)
	out.TenderBreakdown = make(map[string]int64, len(src.TenderBreakdown))
	for k, v := range src.TenderBreakdown {
		out.TenderBreakdown[k] = v
	}
	if src.ClosedAt != nil {
		at := *src.ClosedAt
		out.ClosedAt = &at
	}
	return &out
}
