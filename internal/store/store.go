package store

import (
	"context"
	"errors"
	"time"

	"tillpoint/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicate          = errors.New("duplicate transaction")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrTillClosed         = errors.New("till closed")
	ErrTillAlreadyOpen    = errors.New("till already open")
)

type Repository interface {
	CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error)
	FindTransactionByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Transaction, error)
	ListTransactionsByIDs(ctx context.Context, ids []string) ([]domain.Transaction, error)
	MarkRefunded(ctx context.Context, id string, reason string, refundedBy string, at time.Time) (*domain.Transaction, error)

	CreateTill(ctx context.Context, till domain.Till) (*domain.Till, error)
	GetTill(ctx context.Context, id string) (*domain.Till, error)
	GetOpenTill(ctx context.Context, locationID string) (*domain.Till, error)
	CloseTill(ctx context.Context, locationID string, at time.Time) (*domain.Till, error)
	LinkTransaction(ctx context.Context, tillID string, txID string, totalCents int64, tenders []domain.TenderLine) error
	UnlinkTransaction(ctx context.Context, tillID string, txID string, totalCents int64, tenders []domain.TenderLine) error

	ClaimInventoryUpdate(ctx context.Context, txID string) (bool, error)
	ClaimInventoryRestock(ctx context.Context, txID string, at time.Time) (bool, error)
	AdjustStock(ctx context.Context, locationID string, adjustments []domain.StockAdjustment) error
	GetStockMap(ctx context.Context, locationID string, productRefs []string) (map[string]int, error)
}
