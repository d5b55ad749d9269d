package domain

import (
	"strings"
	"time"
)

type LineItem struct {
	ProductRef     string `json:"product_ref,omitempty"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type TenderLine struct {
	TenderID    string `json:"tender_id,omitempty"`
	TenderName  string `json:"tender_name"`
	AmountCents int64  `json:"amount_cents"`
}

// Payment carries exactly one tender representation: Single for a plain
// one-tender sale, Splits when the total was covered by several tenders.
type Payment struct {
	Single *TenderLine  `json:"single,omitempty"`
	Splits []TenderLine `json:"splits,omitempty"`
}

func (p Payment) IsZero() bool {
	return p.Single == nil && len(p.Splits) == 0
}

// EffectiveLines normalizes a payment to the tender lines that feed the till
// breakdown. A single tender contributes the transaction total, not the cash
// handed over, so change never inflates the drawer figures. Unnamed tenders
// fall back to CASH.
func (p Payment) EffectiveLines(totalCents int64) []TenderLine {
	if p.Single != nil {
		name := p.Single.TenderName
		if name == "" {
			name = TenderCash
		}
		return []TenderLine{{TenderID: p.Single.TenderID, TenderName: name, AmountCents: totalCents}}
	}
	lines := make([]TenderLine, 0, len(p.Splits))
	for _, s := range p.Splits {
		name := s.TenderName
		if name == "" {
			name = TenderCash
		}
		lines = append(lines, TenderLine{TenderID: s.TenderID, TenderName: name, AmountCents: s.AmountCents})
	}
	return lines
}

type Transaction struct {
	ID                   string     `json:"id"`
	ExternalID           string     `json:"external_id,omitempty"`
	LocationID           string     `json:"location_id"`
	TerminalID           string     `json:"terminal_id,omitempty"`
	TillID               string     `json:"till_id,omitempty"`
	StaffName            string     `json:"staff_name"`
	Items                []LineItem `json:"items"`
	SubtotalCents        int64      `json:"subtotal_cents"`
	DiscountCents        int64      `json:"discount_cents"`
	TaxCents             int64      `json:"tax_cents"`
	TotalCents           int64      `json:"total_cents"`
	AmountPaidCents      int64      `json:"amount_paid_cents"`
	ChangeCents          int64      `json:"change_cents"`
	Payment              Payment    `json:"payment"`
	Status               string     `json:"status"`
	SubStatus            string     `json:"sub_status,omitempty"`
	RefundReason         string     `json:"refund_reason,omitempty"`
	RefundedBy           string     `json:"refunded_by,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	InventoryUpdated     bool       `json:"inventory_updated"`
	InventoryRestockedAt *time.Time `json:"inventory_restocked_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Fingerprint is the fallback duplicate check for transactions that arrive
// without an external id.
type Fingerprint struct {
	CreatedAt  time.Time
	TotalCents int64
	TillID     string
	StaffName  string
}

func (t Transaction) Fingerprint() Fingerprint {
	return Fingerprint{
		CreatedAt:  t.CreatedAt,
		TotalCents: t.TotalCents,
		TillID:     t.TillID,
		StaffName:  t.StaffName,
	}
}

// NormalizeStatus folds legacy client spellings onto the canonical set.
// Unknown values pass through so validation can reject them.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "complete", "completed":
		return TxStatusCompleted
	case "held", "hold":
		return TxStatusHeld
	case "refunded":
		return TxStatusRefunded
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}

type Till struct {
	ID                  string           `json:"id"`
	LocationID          string           `json:"location_id"`
	StaffName           string           `json:"staff_name"`
	OpeningBalanceCents int64            `json:"opening_balance_cents"`
	Status              string           `json:"status"`
	TransactionIDs      []string         `json:"transaction_ids"`
	TotalSalesCents     int64            `json:"total_sales_cents"`
	TransactionCount    int64            `json:"transaction_count"`
	TenderBreakdown     map[string]int64 `json:"tender_breakdown"`
	OpenedAt            time.Time        `json:"opened_at"`
	ClosedAt            *time.Time       `json:"closed_at,omitempty"`
}

type TillOpenRequest struct {
	LocationID          string `json:"location_id"`
	StaffName           string `json:"staff_name"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
}

type TillCloseRequest struct {
	LocationID string `json:"location_id"`
	Note       string `json:"note,omitempty"`
}

type TillResponse struct {
	Till Till `json:"till"`
}

type Actor struct {
	Username string
	Role     string
}

type IngestResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

type RefundRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

type CompensationStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type RefundResult struct {
	Status        string             `json:"status"`
	TransactionID string             `json:"transaction_id"`
	Compensation  []CompensationStep `json:"compensation,omitempty"`
}

type RecallResponse struct {
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	Items         []LineItem `json:"items"`
	SubtotalCents int64      `json:"subtotal_cents"`
	DiscountCents int64      `json:"discount_cents"`
	TaxCents      int64      `json:"tax_cents"`
	TotalCents    int64      `json:"total_cents"`
}

type ReceiptResponse struct {
	TransactionID string `json:"transaction_id"`
	EscposBase64  string `json:"escpos_base64"`
	PreviewText   string `json:"preview_text"`
	FileName      string `json:"file_name"`
}

// PendingTransaction is one queued entry on a terminal while it is offline.
type PendingTransaction struct {
	ExternalID  string      `json:"external_id"`
	Transaction Transaction `json:"transaction"`
}

type SyncBatchRequest struct {
	TerminalID   string               `json:"terminal_id"`
	EnvelopeID   string               `json:"envelope_id"`
	Transactions []PendingTransaction `json:"transactions"`
}

type SyncBatchStatus struct {
	ExternalID    string `json:"external_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type SyncBatchResponse struct {
	EnvelopeID string            `json:"envelope_id"`
	Statuses   []SyncBatchStatus `json:"statuses"`
}

type StockAdjustment struct {
	ProductRef string `json:"product_ref"`
	Qty        int    `json:"qty"`
}

const (
	TxStatusHeld      = "held"
	TxStatusCompleted = "completed"
	TxStatusRefunded  = "refunded"

	SubStatusVoid = "void"
)

const (
	TillStatusOpen   = "OPEN"
	TillStatusClosed = "CLOSED"
)

const TenderCash = "CASH"

const (
	IngestStatusAccepted  = "accepted"
	IngestStatusDuplicate = "duplicate"
	IngestStatusRejected  = "rejected"
)

const (
	RefundStatusRefunded        = "refunded"
	RefundStatusAlreadyRefunded = "already_refunded"
	RefundStatusNotApplicable   = "not_applicable"
)

const (
	CompensationOK            = "ok"
	CompensationSkipped       = "skipped"
	CompensationSkippedClosed = "skipped_closed"
	CompensationFailed        = "failed"
)
