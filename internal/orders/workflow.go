// Package orders turns carts and item lists into immutable, correctly
// priced orders and drives the order status machine. It is the only caller
// of the inventory ledger's reserve, commit and release operations.
package orders

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trendstore/commerce-core/internal/cart"
	"github.com/trendstore/commerce-core/internal/catalog"
	"github.com/trendstore/commerce-core/internal/customer"
	"github.com/trendstore/commerce-core/internal/domain"
	"github.com/trendstore/commerce-core/internal/inventory"
	"github.com/trendstore/commerce-core/internal/pricing"
)

type Workflow struct {
	db        *sql.DB
	ledger    *inventory.Ledger
	catalog   *catalog.Repository
	carts     *cart.Repository
	customers *customer.Repository
}

func NewWorkflow(db *sql.DB, ledger *inventory.Ledger, catalogRepo *catalog.Repository, cartRepo *cart.Repository, customerRepo *customer.Repository) *Workflow {
	return &Workflow{db: db, ledger: ledger, catalog: catalogRepo, carts: cartRepo, customers: customerRepo}
}

// ItemInput is one requested order line. UnitPrice, when set, is a price
// snapshot carried over from a cart line; when nil the current catalog price
// is used.
type ItemInput struct {
	VariantID string
	Quantity  int
	UnitPrice *int64
}

type CreateInput struct {
	CustomerID     string
	Items          []ItemInput
	TaxTotal       int64
	ShippingTotal  int64
	DiscountTotal  int64
	IdempotencyKey string

	// cartID, when set, marks the source cart as consumed in the same
	// transaction that persists the order.
	cartID string
}

// Create reserves stock for every line and persists the order with its
// items, reservations and idempotency key in one transaction. Either
// everything lands or nothing does: a failed reservation rolls the whole
// attempt back and no partial order is ever observable. The returned bool
// is false when the idempotency key matched an existing order.
func (w *Workflow) Create(ctx context.Context, tenantID string, input CreateInput) (*domain.Order, bool, error) {
	if err := validateInput(input); err != nil {
		return nil, false, err
	}

	// A customer reference must resolve within this tenant; ids from other
	// tenants are treated as unknown.
	if input.CustomerID != "" {
		if _, err := w.customers.Resolve(ctx, tenantID, input.CustomerID); err != nil {
			return nil, false, err
		}
	}

	fingerprint := itemsFingerprint(input.Items)

	if existing, err := w.lookupIdempotencyKey(ctx, tenantID, input.IdempotencyKey, fingerprint); err != nil {
		return nil, false, err
	} else if existing != "" {
		order, err := w.GetByID(ctx, tenantID, existing)
		return order, false, err
	}

	items, currency, err := w.snapshotItems(ctx, tenantID, input.Items)
	if err != nil {
		return nil, false, err
	}

	totals := pricing.Compute(items, input.TaxTotal, input.ShippingTotal, input.DiscountTotal)

	order := &domain.Order{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		CustomerID:    input.CustomerID,
		Status:        domain.OrderStatusPendingPayment,
		Currency:      currency,
		Subtotal:      totals.Subtotal,
		TaxTotal:      input.TaxTotal,
		ShippingTotal: input.ShippingTotal,
		DiscountTotal: input.DiscountTotal,
		Total:         totals.Total,
		Items:         items,
		CreatedAt:     time.Now().UTC(),
	}
	order.UpdatedAt = order.CreatedAt

	var replayed *domain.Order
	err = inventory.WithRetry(ctx, func() error {
		var err error
		replayed, err = w.createTx(ctx, order, input, fingerprint)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if replayed != nil {
		return replayed, false, nil
	}

	return order, true, nil
}

// createTx runs one creation attempt. It returns a non-nil order when a
// concurrent request with the same idempotency key won the race; the caller
// returns that order instead.
func (w *Workflow) createTx(ctx context.Context, order *domain.Order, input CreateInput, fingerprint string) (*domain.Order, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, tenant_id, customer_id, status, currency, subtotal, tax_total, shipping_total, discount_total, total, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, order.ID, order.TenantID, order.CustomerID, order.Status, order.Currency,
		order.Subtotal, order.TaxTotal, order.ShippingTotal, order.DiscountTotal, order.Total, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, variant_id, title, sku, quantity, unit_price, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), order.ID, item.VariantID, item.Title, item.SKU, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	for _, item := range order.Items {
		if _, err := w.ledger.ReserveTx(ctx, tx, order.ID, item.VariantID, item.Quantity); err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (tenant_id, key, order_id, items_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, key) DO NOTHING
	`, order.TenantID, input.IdempotencyKey, order.ID, fingerprint)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		// Lost the idempotency race: abandon this attempt and return the
		// order the winner created.
		_ = tx.Rollback()
		existing, err := w.lookupIdempotencyKey(ctx, order.TenantID, input.IdempotencyKey, fingerprint)
		if err != nil {
			return nil, err
		}
		return w.GetByID(ctx, order.TenantID, existing)
	}

	if input.cartID != "" {
		if err := w.carts.ConsumeTx(ctx, tx, input.cartID, order.ID); err != nil {
			return nil, err
		}
	}

	return nil, tx.Commit()
}

// CreateFromCart materializes an order from a cart using the snapshotted
// line prices. Re-submitting a consumed cart returns the existing order.
func (w *Workflow) CreateFromCart(ctx context.Context, tenantID, cartID string, input CreateInput) (*domain.Order, bool, error) {
	c, err := w.carts.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, false, err
	}
	if c.Consumed() {
		order, err := w.GetByID(ctx, tenantID, c.OrderID)
		return order, false, err
	}
	if len(c.Items) == 0 {
		return nil, false, domain.NewValidationError("items", "cart is empty")
	}

	input.cartID = cartID
	if input.CustomerID == "" {
		input.CustomerID = c.CustomerID
	}
	input.Items = make([]ItemInput, len(c.Items))
	for i, item := range c.Items {
		price := item.UnitPrice
		input.Items[i] = ItemInput{VariantID: item.VariantID, Quantity: item.Quantity, UnitPrice: &price}
	}

	order, created, err := w.Create(ctx, tenantID, input)
	if err != nil && errors.Is(err, domain.ErrConflict) {
		// Another checkout consumed the cart between our read and commit.
		if c, getErr := w.carts.Get(ctx, tenantID, cartID); getErr == nil && c.Consumed() {
			order, getErr := w.GetByID(ctx, tenantID, c.OrderID)
			return order, false, getErr
		}
	}
	return order, created, err
}

// Transition applies a guarded status change. Re-applying the current
// status is a no-op. Moving into FULFILLING commits the order's
// reservations; canceling before fulfillment releases them, in the same
// transaction as the status write. The previous status is returned for
// event publication.
func (w *Workflow) Transition(ctx context.Context, tenantID, orderID string, target domain.OrderStatus) (*domain.Order, domain.OrderStatus, error) {
	if !target.Valid() {
		return nil, "", domain.NewValidationError("status", fmt.Sprintf("unknown status %q", target))
	}

	var from domain.OrderStatus
	err := inventory.WithRetry(ctx, func() error {
		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		err = tx.QueryRowContext(ctx, `
			SELECT status FROM orders WHERE id = $1 AND tenant_id = $2 FOR UPDATE
		`, orderID, tenantID).Scan(&from)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
			}
			return err
		}

		if from == target {
			return nil
		}
		if !from.CanTransitionTo(target) {
			return fmt.Errorf("%s -> %s: %w", from, target, domain.ErrInvalidTransition)
		}

		switch target {
		case domain.OrderStatusFulfilling:
			if err := w.ledger.CommitOrderTx(ctx, tx, orderID); err != nil {
				return err
			}
		case domain.OrderStatusCanceled:
			if err := w.ledger.ReleaseOrderTx(ctx, tx, orderID); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2
		`, target, orderID)
		if err != nil {
			return err
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, "", err
	}

	order, err := w.GetByID(ctx, tenantID, orderID)
	return order, from, err
}

func (w *Workflow) GetByID(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	order := &domain.Order{}
	var customerID sql.NullString

	err := w.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, status, currency, subtotal, tax_total, shipping_total, discount_total, total, created_at, updated_at
		FROM orders
		WHERE id = $1 AND tenant_id = $2
	`, orderID, tenantID).Scan(&order.ID, &order.TenantID, &customerID, &order.Status, &order.Currency,
		&order.Subtotal, &order.TaxTotal, &order.ShippingTotal, &order.DiscountTotal, &order.Total,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
		}
		return nil, err
	}
	order.CustomerID = customerID.String

	rows, err := w.db.QueryContext(ctx, `
		SELECT variant_id, title, COALESCE(sku, ''), quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.VariantID, &item.Title, &item.SKU, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	return order, rows.Err()
}

// List returns the tenant's orders most recent first, items batched in a
// second query to avoid per-order round trips.
func (w *Workflow) List(ctx context.Context, tenantID string) ([]domain.Order, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT id, tenant_id, customer_id, status, currency, subtotal, tax_total, shipping_total, discount_total, total, created_at, updated_at
		FROM orders
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		var customerID sql.NullString
		if err := rows.Scan(&order.ID, &order.TenantID, &customerID, &order.Status, &order.Currency,
			&order.Subtotal, &order.TaxTotal, &order.ShippingTotal, &order.DiscountTotal, &order.Total,
			&order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.CustomerID = customerID.String
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := w.db.QueryContext(ctx, `
		SELECT order_id, variant_id, title, COALESCE(sku, ''), quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.VariantID, &item.Title, &item.SKU, &item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (w *Workflow) snapshotItems(ctx context.Context, tenantID string, inputs []ItemInput) ([]domain.OrderItem, string, error) {
	items := make([]domain.OrderItem, 0, len(inputs))
	currency := ""

	for _, input := range inputs {
		snap, err := w.catalog.GetVariant(ctx, tenantID, input.VariantID)
		if err != nil {
			return nil, "", err
		}
		if !snap.IsActive {
			return nil, "", fmt.Errorf("variant %s is inactive: %w", input.VariantID, domain.ErrNotFound)
		}

		if currency == "" {
			currency = snap.Currency
		} else if currency != snap.Currency {
			return nil, "", domain.NewValidationError("items", "mixed currencies in one order")
		}

		unitPrice := snap.Price
		if input.UnitPrice != nil {
			unitPrice = *input.UnitPrice
		}

		items = append(items, domain.OrderItem{
			VariantID: input.VariantID,
			Title:     snap.Title,
			SKU:       snap.SKU,
			Quantity:  input.Quantity,
			UnitPrice: unitPrice,
		})
	}

	return items, currency, nil
}

// lookupIdempotencyKey returns the order id recorded for the key, if any.
// A key reused with different items is a conflict, not a replay.
func (w *Workflow) lookupIdempotencyKey(ctx context.Context, tenantID, key, fingerprint string) (string, error) {
	var orderID, storedHash string
	err := w.db.QueryRowContext(ctx, `
		SELECT order_id, items_hash FROM idempotency_keys WHERE tenant_id = $1 AND key = $2
	`, tenantID, key).Scan(&orderID, &storedHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}

	if storedHash != fingerprint {
		return "", fmt.Errorf("idempotency key %q reused with different items: %w", key, domain.ErrConflict)
	}

	return orderID, nil
}

func validateInput(input CreateInput) error {
	if input.IdempotencyKey == "" {
		return domain.NewValidationError("idempotency_key", "is required")
	}
	if len(input.Items) == 0 {
		return domain.NewValidationError("items", "at least one item is required")
	}
	for _, item := range input.Items {
		if item.VariantID == "" {
			return domain.NewValidationError("variant_id", "is required")
		}
		if item.Quantity < 1 {
			return domain.NewValidationError("quantity", "must be at least 1")
		}
		if item.UnitPrice != nil && *item.UnitPrice < 0 {
			return domain.NewValidationError("unit_price", "must be non-negative")
		}
	}
	if input.TaxTotal < 0 || input.ShippingTotal < 0 || input.DiscountTotal < 0 {
		return domain.NewValidationError("totals", "adjustments must be non-negative")
	}
	return nil
}

// itemsFingerprint canonicalizes the requested lines so an idempotent
// replay can be told apart from a key collision.
func itemsFingerprint(items []ItemInput) string {
	h := sha256.New()
	for _, item := range items {
		price := int64(-1)
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		fmt.Fprintf(h, "%s|%d|%d;", item.VariantID, item.Quantity, price)
	}
	return hex.EncodeToString(h.Sum(nil))
}
