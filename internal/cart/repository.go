// Package cart builds and mutates carts. Carts are optimistic: no stock is
// checked or reserved here; reservation happens only at order creation.
package cart

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trendstore/commerce-core/internal/catalog"
	"github.com/trendstore/commerce-core/internal/customer"
	"github.com/trendstore/commerce-core/internal/domain"
)

type Repository struct {
	db        *sql.DB
	catalog   *catalog.Repository
	customers *customer.Repository
}

func NewRepository(db *sql.DB, catalogRepo *catalog.Repository, customerRepo *customer.Repository) *Repository {
	return &Repository{db: db, catalog: catalogRepo, customers: customerRepo}
}

type SeedItem struct {
	VariantID string
	Quantity  int
}

// Create inserts a cart, optionally seeded with items. Each seeded line
// snapshots the current unit price.
func (r *Repository) Create(ctx context.Context, tenantID, customerID string, items []SeedItem) (*domain.Cart, error) {
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, domain.NewValidationError("quantity", "must be at least 1")
		}
	}

	if customerID != "" {
		if _, err := r.customers.Resolve(ctx, tenantID, customerID); err != nil {
			return nil, err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	cartID := uuid.New().String()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO carts (id, tenant_id, customer_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $4)
	`, cartID, tenantID, customerID, now)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		snap, err := r.catalog.GetVariant(ctx, tenantID, item.VariantID)
		if err != nil {
			return nil, err
		}
		if !snap.IsActive {
			return nil, fmt.Errorf("variant %s is inactive: %w", item.VariantID, domain.ErrNotFound)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_items (id, cart_id, variant_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (cart_id, variant_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		`, uuid.New().String(), cartID, item.VariantID, item.Quantity, snap.Price)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return r.Get(ctx, tenantID, cartID)
}

func (r *Repository) Get(ctx context.Context, tenantID, cartID string) (*domain.Cart, error) {
	cart := &domain.Cart{}
	var customerID, orderID sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, order_id, created_at, updated_at
		FROM carts
		WHERE id = $1 AND tenant_id = $2
	`, cartID, tenantID).Scan(&cart.ID, &cart.TenantID, &customerID, &orderID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("cart %s: %w", cartID, domain.ErrNotFound)
		}
		return nil, err
	}
	cart.CustomerID = customerID.String
	cart.OrderID = orderID.String

	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_id, quantity, unit_price
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.VariantID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, item)
	}

	return cart, rows.Err()
}

// AddItem appends a line with the price snapshotted now, or merges the
// quantity into an existing line keeping that line's original snapshot.
func (r *Repository) AddItem(ctx context.Context, tenantID, cartID, variantID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.NewValidationError("quantity", "must be at least 1")
	}

	cart, err := r.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Consumed() {
		return nil, fmt.Errorf("cart %s already produced order %s: %w", cartID, cart.OrderID, domain.ErrConflict)
	}

	snap, err := r.catalog.GetVariant(ctx, tenantID, variantID)
	if err != nil {
		return nil, err
	}
	if !snap.IsActive {
		return nil, fmt.Errorf("variant %s is inactive: %w", variantID, domain.ErrNotFound)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_items (id, cart_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, variant_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, uuid.New().String(), cartID, variantID, quantity, snap.Price)
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, tenantID, cartID)
}

// SetQuantity replaces a line's quantity; zero or less removes the line.
func (r *Repository) SetQuantity(ctx context.Context, tenantID, cartID, variantID string, quantity int) (*domain.Cart, error) {
	cart, err := r.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Consumed() {
		return nil, fmt.Errorf("cart %s already produced order %s: %w", cartID, cart.OrderID, domain.ErrConflict)
	}

	if quantity <= 0 {
		return r.RemoveItem(ctx, tenantID, cartID, variantID)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE cart_items SET quantity = $3 WHERE cart_id = $1 AND variant_id = $2
	`, cartID, variantID, quantity)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("cart line for variant %s: %w", variantID, domain.ErrNotFound)
	}

	return r.Get(ctx, tenantID, cartID)
}

func (r *Repository) RemoveItem(ctx context.Context, tenantID, cartID, variantID string) (*domain.Cart, error) {
	cart, err := r.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Consumed() {
		return nil, fmt.Errorf("cart %s already produced order %s: %w", cartID, cart.OrderID, domain.ErrConflict)
	}

	_, err = r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE cart_id = $1 AND variant_id = $2
	`, cartID, variantID)
	if err != nil {
		return nil, err
	}

	return r.Get(ctx, tenantID, cartID)
}

// ConsumeTx stamps the materialized order onto the cart inside the order
// creation transaction. Zero rows affected means another request already
// consumed the cart.
func (r *Repository) ConsumeTx(ctx context.Context, tx *sql.Tx, cartID, orderID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE carts SET order_id = $2, updated_at = NOW()
		WHERE id = $1 AND order_id IS NULL
	`, cartID, orderID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("cart %s already consumed: %w", cartID, domain.ErrConflict)
	}

	return nil
}
