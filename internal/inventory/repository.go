// Package inventory is the sole authority over stock counters. Reservations
// are taken with a single conditional UPDATE so that concurrent checkouts
// racing for the last unit are decided by the database row, never by a
// read-then-write in application code.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trendstore/commerce-core/internal/domain"
)

// maxRetries bounds transparent retries on serialization failures before a
// conflict is surfaced to the caller.
const maxRetries = 3

type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// GetStock returns the stock level for a variant within the tenant.
func (l *Ledger) GetStock(ctx context.Context, tenantID, variantID string) (*domain.StockLevel, error) {
	stock := &domain.StockLevel{}

	err := l.db.QueryRowContext(ctx, `
		SELECT i.variant_id, i.stock_on_hand, i.stock_reserved, i.low_stock_threshold, i.allow_backorder
		FROM inventory_items i
		JOIN product_variants v ON v.id = i.variant_id
		JOIN products p ON p.id = v.product_id
		WHERE i.variant_id = $1 AND p.tenant_id = $2
	`, variantID, tenantID).Scan(&stock.VariantID, &stock.OnHand, &stock.Reserved, &stock.LowStockThreshold, &stock.AllowBackorder)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("stock for variant %s: %w", variantID, domain.ErrNotFound)
		}
		return nil, err
	}

	return stock, nil
}

// AdjustStock is the admin restock path. Lowering stock on hand below the
// reserved quantity is rejected unless backorder is enabled, so the reserved
// invariant cannot be broken from the console.
func (l *Ledger) AdjustStock(ctx context.Context, tenantID, variantID string, onHand, lowStockThreshold int, allowBackorder bool) (*domain.StockLevel, error) {
	if onHand < 0 {
		return nil, domain.NewValidationError("stock_on_hand", "must be non-negative")
	}

	result, err := l.db.ExecContext(ctx, `
		UPDATE inventory_items i
		SET stock_on_hand = $3, low_stock_threshold = $4, allow_backorder = $5
		FROM product_variants v, products p
		WHERE i.variant_id = v.id AND p.id = v.product_id
		  AND i.variant_id = $1 AND p.tenant_id = $2
		  AND ($5 OR i.stock_reserved <= $3)
	`, variantID, tenantID, onHand, lowStockThreshold, allowBackorder)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		if _, err := l.GetStock(ctx, tenantID, variantID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("stock on hand %d below reserved quantity: %w", onHand, domain.ErrConflict)
	}

	return l.GetStock(ctx, tenantID, variantID)
}

// ReserveTx atomically takes a hold of quantity units against the variant
// inside the caller's transaction and records the reservation row. The
// availability check and the counter increment are one statement; a losing
// racer observes zero rows affected and gets ErrInsufficientStock.
func (l *Ledger) ReserveTx(ctx context.Context, tx *sql.Tx, orderID, variantID string, quantity int) (string, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET stock_reserved = stock_reserved + $2
		WHERE variant_id = $1
		  AND (allow_backorder OR stock_on_hand - stock_reserved >= $2)
	`, variantID, quantity)
	if err != nil {
		return "", err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return "", err
	}
	if rowsAffected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM inventory_items WHERE variant_id = $1)
		`, variantID).Scan(&exists); err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("stock for variant %s: %w", variantID, domain.ErrNotFound)
		}
		return "", fmt.Errorf("variant %s: %w", variantID, domain.ErrInsufficientStock)
	}

	reservationID := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, order_id, variant_id, quantity, status)
		VALUES ($1, $2, $3, $4, $5)
	`, reservationID, orderID, variantID, quantity, domain.ReservationHeld)
	if err != nil {
		return "", err
	}

	return reservationID, nil
}

// CommitOrderTx converts every held reservation of the order into a
// permanent decrement: stock on hand and reserved drop together, leaving
// available-to-sell unchanged.
func (l *Ledger) CommitOrderTx(ctx context.Context, tx *sql.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE inventory_items i
		SET stock_on_hand = i.stock_on_hand - r.quantity,
		    stock_reserved = i.stock_reserved - r.quantity
		FROM reservations r
		WHERE r.order_id = $1 AND r.status = $2 AND i.variant_id = r.variant_id
	`, orderID, domain.ReservationHeld)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reservations SET status = $2 WHERE order_id = $1 AND status = $3
	`, orderID, domain.ReservationCommitted, domain.ReservationHeld)
	return err
}

// ReleaseOrderTx undoes every held reservation of the order, restoring the
// reserved counter. Stock on hand is untouched.
func (l *Ledger) ReleaseOrderTx(ctx context.Context, tx *sql.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE inventory_items i
		SET stock_reserved = i.stock_reserved - r.quantity
		FROM reservations r
		WHERE r.order_id = $1 AND r.status = $2 AND i.variant_id = r.variant_id
	`, orderID, domain.ReservationHeld)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reservations SET status = $2 WHERE order_id = $1 AND status = $3
	`, orderID, domain.ReservationReleased, domain.ReservationHeld)
	return err
}

// ListReservations returns the reservation rows for an order.
func (l *Ledger) ListReservations(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, order_id, variant_id, quantity, status
		FROM reservations
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reservations []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.VariantID, &res.Quantity, &res.Status); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}

// Retryable reports whether err is transient contention (serialization
// failure or deadlock) worth retrying.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "40"
	}
	return false
}

// WithRetry runs fn up to maxRetries times while it fails with a retryable
// error, then surfaces the contention as ErrConflict.
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = fn(); err == nil || !Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("retries exhausted: %v: %w", err, domain.ErrConflict)
}
