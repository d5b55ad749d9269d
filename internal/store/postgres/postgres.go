package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tillpoint/backend/internal/domain"
	"tillpoint/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const (
	tenderKindSingle = "single"
	tenderKindSplit  = "split"
)

func (s *Store) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, external_id, location_id, terminal_id, till_id, staff_name,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			amount_paid_cents, change_cents, status, sub_status,
			refund_reason, refunded_by, refunded_at,
			inventory_updated, inventory_restocked_at, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, tx.ID, nullIfEmpty(tx.ExternalID), tx.LocationID, nullIfEmpty(tx.TerminalID),
		nullIfEmpty(tx.TillID), tx.StaffName,
		tx.SubtotalCents, tx.DiscountCents, tx.TaxCents, tx.TotalCents,
		tx.AmountPaidCents, tx.ChangeCents, tx.Status, nullIfEmpty(tx.SubStatus),
		nullIfEmpty(tx.RefundReason), nullIfEmpty(tx.RefundedBy), nullTime(tx.RefundedAt),
		tx.InventoryUpdated, nullTime(tx.InventoryRestockedAt), tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for _, item := range tx.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, product_ref, name, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5)
		`, tx.ID, nullIfEmpty(item.ProductRef), item.Name, item.UnitPriceCents, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	if tx.Payment.Single != nil {
		single := tx.Payment.Single
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_tenders (transaction_id, kind, tender_id, tender_name, amount_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, tx.ID, tenderKindSingle, nullIfEmpty(single.TenderID), single.TenderName, single.AmountCents)
		if err != nil {
			return nil, err
		}
	}
	for _, split := range tx.Payment.Splits {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_tenders (transaction_id, kind, tender_id, tender_name, amount_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, tx.ID, tenderKindSplit, nullIfEmpty(split.TenderID), split.TenderName, split.AmountCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	saved := tx
	return &saved, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "id", id)
}

func (s *Store) FindTransactionByExternalID(ctx context.Context, externalID string) (*domain.Transaction, error) {
	return s.findTransaction(ctx, "external_id", externalID)
}

func (s *Store) findTransaction(ctx context.Context, column string, value string) (*domain.Transaction, error) {
	if column != "id" && column != "external_id" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT id, COALESCE(external_id,''), location_id, COALESCE(terminal_id,''),
			COALESCE(till_id,''), staff_name,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			amount_paid_cents, change_cents, status, COALESCE(sub_status,''),
			COALESCE(refund_reason,''), COALESCE(refunded_by,''), refunded_at,
			inventory_updated, inventory_restocked_at, created_at
		FROM transactions
		WHERE %s = $1
	`, column)

	tx, err := s.scanTransaction(s.db.QueryRowContext(ctx, query, value))
	if err != nil {
		return nil, err
	}
	if err := s.loadTransactionChildren(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) FindTransactionByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Transaction, error) {
	tx, err := s.scanTransaction(s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(external_id,''), location_id, COALESCE(terminal_id,''),
			COALESCE(till_id,''), staff_name,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			amount_paid_cents, change_cents, status, COALESCE(sub_status,''),
			COALESCE(refund_reason,''), COALESCE(refunded_by,''), refunded_at,
			inventory_updated, inventory_restocked_at, created_at
		FROM transactions
		WHERE created_at = $1 AND total_cents = $2 AND COALESCE(till_id,'') = $3 AND staff_name = $4
		LIMIT 1
	`, fp.CreatedAt, fp.TotalCents, fp.TillID, fp.StaffName))
	if err != nil {
		return nil, err
	}
	if err := s.loadTransactionChildren(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) ListTransactionsByIDs(ctx context.Context, ids []string) ([]domain.Transaction, error) {
	if len(ids) == 0 {
		return []domain.Transaction{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(external_id,''), location_id, COALESCE(terminal_id,''),
			COALESCE(till_id,''), staff_name,
			subtotal_cents, discount_cents, tax_cents, total_cents,
			amount_paid_cents, change_cents, status, COALESCE(sub_status,''),
			COALESCE(refund_reason,''), COALESCE(refunded_by,''), refunded_at,
			inventory_updated, inventory_restocked_at, created_at
		FROM transactions
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]*domain.Transaction, len(ids))
	for rows.Next() {
		tx, err := s.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		byID[tx.ID] = tx
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Transaction, 0, len(ids))
	for _, id := range ids {
		tx, ok := byID[id]
		if !ok {
			continue
		}
		if err := s.loadTransactionChildren(ctx, tx); err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var refundedAt sql.NullTime
	var restockedAt sql.NullTime
	err := row.Scan(
		&tx.ID,
		&tx.ExternalID,
		&tx.LocationID,
		&tx.TerminalID,
		&tx.TillID,
		&tx.StaffName,
		&tx.SubtotalCents,
		&tx.DiscountCents,
		&tx.TaxCents,
		&tx.TotalCents,
		&tx.AmountPaidCents,
		&tx.ChangeCents,
		&tx.Status,
		&tx.SubStatus,
		&tx.RefundReason,
		&tx.RefundedBy,
		&refundedAt,
		&tx.InventoryUpdated,
		&restockedAt,
		&tx.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if refundedAt.Valid {
		at := refundedAt.Time.UTC()
		tx.RefundedAt = &at
	}
	if restockedAt.Valid {
		at := restockedAt.Time.UTC()
		tx.InventoryRestockedAt = &at
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) loadTransactionChildren(ctx context.Context, tx *domain.Transaction) error {
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(product_ref,''), name, unit_price_cents, qty
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY id ASC
	`, tx.ID)
	if err != nil {
		return err
	}
	defer itemRows.Close()

	items := make([]domain.LineItem, 0, 8)
	for itemRows.Next() {
		var item domain.LineItem
		if err := itemRows.Scan(&item.ProductRef, &item.Name, &item.UnitPriceCents, &item.Qty); err != nil {
			return err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		return err
	}
	tx.Items = items

	tenderRows, err := s.db.QueryContext(ctx, `
		SELECT kind, COALESCE(tender_id,''), tender_name, amount_cents
		FROM transaction_tenders
		WHERE transaction_id = $1
		ORDER BY id ASC
	`, tx.ID)
	if err != nil {
		return err
	}
	defer tenderRows.Close()

	tx.Payment = domain.Payment{}
	for tenderRows.Next() {
		var kind string
		var line domain.TenderLine
		if err := tenderRows.Scan(&kind, &line.TenderID, &line.TenderName, &line.AmountCents); err != nil {
			return err
		}
		if kind == tenderKindSingle {
			single := line
			tx.Payment.Single = &single
			continue
		}
		tx.Payment.Splits = append(tx.Payment.Splits, line)
	}
	return tenderRows.Err()
}

func (s *Store) MarkRefunded(ctx context.Context, id string, reason string, refundedBy string, at time.Time) (*domain.Transaction, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.TxStatusCompleted {
		return nil, store.ErrInvalidTransaction
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, sub_status = $3, refund_reason = $4, refunded_by = $5, refunded_at = $6
		WHERE id = $1 AND status = $7
	`, id, domain.TxStatusRefunded, domain.SubStatusVoid, reason, refundedBy, at, domain.TxStatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.findTransaction(ctx, "id", id)
}

func (s *Store) CreateTill(ctx context.Context, t domain.Till) (*domain.Till, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tills (
			id, location_id, staff_name, opening_balance_cents,
			status, total_sales_cents, transaction_count, opened_at, closed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, t.ID, t.LocationID, t.StaffName, t.OpeningBalanceCents,
		t.Status, t.TotalSalesCents, t.TransactionCount, t.OpenedAt, nullTime(t.ClosedAt))
	if err != nil {
		// partial unique index: one OPEN till per location
		if isUniqueViolation(err) {
			return nil, store.ErrTillAlreadyOpen
		}
		return nil, err
	}
	saved := t
	return &saved, nil
}

func (s *Store) GetTill(ctx context.Context, id string) (*domain.Till, error) {
	return s.getTill(ctx, "id", id)
}

func (s *Store) GetOpenTill(ctx context.Context, locationID string) (*domain.Till, error) {
	return s.getTill(ctx, "location_open", locationID)
}

func (s *Store) getTill(ctx context.Context, mode string, value string) (*domain.Till, error) {
	query := `
		SELECT id, location_id, staff_name, opening_balance_cents,
			status, total_sales_cents, transaction_count, opened_at, closed_at
		FROM tills
		WHERE id = $1
	`
	if mode == "location_open" {
		query = `
			SELECT id, location_id, staff_name, opening_balance_cents,
				status, total_sales_cents, transaction_count, opened_at, closed_at
			FROM tills
			WHERE location_id = $1 AND status = 'OPEN'
		`
	}

	var t domain.Till
	var closedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&t.ID,
		&t.LocationID,
		&t.StaffName,
		&t.OpeningBalanceCents,
		&t.Status,
		&t.TotalSalesCents,
		&t.TransactionCount,
		&t.OpenedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.OpenedAt = t.OpenedAt.UTC()
	if closedAt.Valid {
		at := closedAt.Time.UTC()
		t.ClosedAt = &at
	}

	if err := s.loadTillChildren(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) loadTillChildren(ctx context.Context, t *domain.Till) error {
	idRows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id
		FROM till_transactions
		WHERE till_id = $1
		ORDER BY position ASC
	`, t.ID)
	if err != nil {
		return err
	}
	defer idRows.Close()

	ids := make([]string, 0, 32)
	for idRows.Next() {
		var id string
		if err := idRows.Scan(&id); err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := idRows.Err(); err != nil {
		return err
	}
	t.TransactionIDs = ids

	tenderRows, err := s.db.QueryContext(ctx, `
		SELECT tender_name, amount_cents
		FROM till_tenders
		WHERE till_id = $1
	`, t.ID)
	if err != nil {
		return err
	}
	defer tenderRows.Close()

	t.TenderBreakdown = map[string]int64{}
	for tenderRows.Next() {
		var name string
		var amount int64
		if err := tenderRows.Scan(&name, &amount); err != nil {
			return err
		}
		t.TenderBreakdown[name] = amount
	}
	return tenderRows.Err()
}

func (s *Store) CloseTill(ctx context.Context, locationID string, at time.Time) (*domain.Till, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		UPDATE tills
		SET status = 'CLOSED', closed_at = $2
		WHERE location_id = $1 AND status = 'OPEN'
		RETURNING id
	`, locationID, at).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return s.getTill(ctx, "id", id)
}

func (s *Store) LinkTransaction(ctx context.Context, tillID string, txID string, totalCents int64, tenders []domain.TenderLine) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var exists bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tills WHERE id = $1)
	`, tillID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO till_transactions (till_id, transaction_id)
		VALUES ($1,$2)
		ON CONFLICT (till_id, transaction_id) DO NOTHING
	`, tillID, txID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// already linked, the aggregates were folded on first link
		return pgTx.Commit()
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE tills
		SET total_sales_cents = total_sales_cents + $2, transaction_count = transaction_count + 1
		WHERE id = $1
	`, tillID, totalCents)
	if err != nil {
		return err
	}

	for _, line := range tenders {
		name := line.TenderName
		if name == "" {
			name = domain.TenderCash
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO till_tenders (till_id, tender_name, amount_cents)
			VALUES ($1,$2,$3)
			ON CONFLICT (till_id, tender_name)
			DO UPDATE SET amount_cents = till_tenders.amount_cents + EXCLUDED.amount_cents
		`, tillID, name, line.AmountCents)
		if err != nil {
			return err
		}
	}

	return pgTx.Commit()
}

func (s *Store) UnlinkTransaction(ctx context.Context, tillID string, txID string, totalCents int64, tenders []domain.TenderLine) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var status string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status
		FROM tills
		WHERE id = $1
		FOR UPDATE
	`, tillID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if status != domain.TillStatusOpen {
		return store.ErrTillClosed
	}

	res, err := pgTx.ExecContext(ctx, `
		DELETE FROM till_transactions
		WHERE till_id = $1 AND transaction_id = $2
	`, tillID, txID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE tills
		SET total_sales_cents = GREATEST(total_sales_cents - $2, 0),
			transaction_count = GREATEST(transaction_count - 1, 0)
		WHERE id = $1
	`, tillID, totalCents)
	if err != nil {
		return err
	}

	for _, line := range tenders {
		name := line.TenderName
		if name == "" {
			name = domain.TenderCash
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE till_tenders
			SET amount_cents = GREATEST(amount_cents - $3, 0)
			WHERE till_id = $1 AND tender_name = $2
		`, tillID, name, line.AmountCents)
		if err != nil {
			return err
		}
	}

	return pgTx.Commit()
}

func (s *Store) ClaimInventoryUpdate(ctx context.Context, txID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET inventory_updated = true
		WHERE id = $1 AND inventory_updated = false
	`, txID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	return false, s.transactionExists(ctx, txID)
}

func (s *Store) ClaimInventoryRestock(ctx context.Context, txID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET inventory_restocked_at = $2
		WHERE id = $1 AND inventory_updated = true AND inventory_restocked_at IS NULL
	`, txID, at)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}
	return false, s.transactionExists(ctx, txID)
}

func (s *Store) transactionExists(ctx context.Context, txID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)
	`, txID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, locationID string, adjustments []domain.StockAdjustment) error {
	if len(adjustments) == 0 {
		return nil
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, adj := range adjustments {
		if adj.ProductRef == "" || adj.Qty == 0 {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO inventory_stocks (location_id, product_ref, qty, updated_at)
			VALUES ($1,$2,GREATEST($3,0),now())
			ON CONFLICT (location_id, product_ref)
			DO UPDATE SET qty = GREATEST(inventory_stocks.qty + $3, 0), updated_at = now()
		`, locationID, adj.ProductRef, adj.Qty)
		if err != nil {
			return err
		}
	}

	return pgTx.Commit()
}

func (s *Store) GetStockMap(ctx context.Context, locationID string, productRefs []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(productRefs))
	if len(productRefs) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_ref, qty
		FROM inventory_stocks
		WHERE location_id = $1 AND product_ref = ANY($2)
	`, locationID, productRefs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		var qty int
		if err := rows.Scan(&ref, &qty); err != nil {
			return nil, err
		}
		stockMap[ref] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ref := range productRefs {
		if _, ok := stockMap[ref]; !ok {
			stockMap[ref] = 0
		}
	}

	return stockMap, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
