package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trendstore/commerce-core/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// VariantSnapshot is what cart and order assembly need to price a line:
// current price plus the title/sku copied onto receipts.
type VariantSnapshot struct {
	VariantID     string
	ProductID     string
	Title         string
	SKU           string
	Price         int64
	Currency      string
	IsActive      bool
	ProductStatus domain.ProductStatus
}

// ListPublished returns the storefront catalog: published products with
// their active variants and stock levels, most recent first.
func (r *Repository) ListPublished(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, title, handle, COALESCE(description, ''), status, created_at, updated_at
		FROM products
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at DESC
	`, tenantID, domain.ProductStatusPublished)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	productMap := make(map[string]*domain.Product)
	var productIDs []string

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Title, &p.Handle, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Variants = []domain.Variant{}
		productMap[p.ID] = &p
		productIDs = append(productIDs, p.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(productIDs) == 0 {
		return []domain.Product{}, nil
	}

	variantRows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.product_id, COALESCE(v.title, ''), COALESCE(v.sku, ''), v.price, v.currency, v.is_active,
		       i.stock_on_hand, i.stock_reserved, i.low_stock_threshold, i.allow_backorder
		FROM product_variants v
		JOIN inventory_items i ON i.variant_id = v.id
		WHERE v.product_id = ANY($1) AND v.is_active
	`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = variantRows.Close() }()

	for variantRows.Next() {
		var v domain.Variant
		stock := domain.StockLevel{}
		if err := variantRows.Scan(&v.ID, &v.ProductID, &v.Title, &v.SKU, &v.Price, &v.Currency, &v.IsActive,
			&stock.OnHand, &stock.Reserved, &stock.LowStockThreshold, &stock.AllowBackorder); err != nil {
			return nil, err
		}
		stock.VariantID = v.ID
		v.Stock = &stock
		product := productMap[v.ProductID]
		product.Variants = append(product.Variants, v)
	}

	if err := variantRows.Err(); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		products = append(products, *productMap[id])
	}

	return products, nil
}

// GetVariant resolves a variant within the caller's tenant. The product join
// enforces the tenant boundary.
func (r *Repository) GetVariant(ctx context.Context, tenantID, variantID string) (*VariantSnapshot, error) {
	snap := &VariantSnapshot{}

	err := r.db.QueryRowContext(ctx, `
		SELECT v.id, v.product_id, p.title, COALESCE(v.sku, ''), v.price, v.currency, v.is_active, p.status
		FROM product_variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1 AND p.tenant_id = $2
	`, variantID, tenantID).Scan(&snap.VariantID, &snap.ProductID, &snap.Title, &snap.SKU,
		&snap.Price, &snap.Currency, &snap.IsActive, &snap.ProductStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("variant %s: %w", variantID, domain.ErrNotFound)
		}
		return nil, err
	}

	return snap, nil
}

type CreateProductInput struct {
	Title       string
	Handle      string
	Description string
	SKU         string
	Price       int64
	Currency    string
}

// CreateProduct inserts a draft product with one default variant and a
// zeroed inventory row, all in one transaction.
func (r *Repository) CreateProduct(ctx context.Context, tenantID string, input CreateProductInput) (*domain.Product, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	product := &domain.Product{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Title:       input.Title,
		Handle:      input.Handle,
		Description: input.Description,
		Status:      domain.ProductStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, title, handle, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, product.ID, product.TenantID, product.Title, product.Handle, product.Description, product.Status, now)
	if err != nil {
		return nil, err
	}

	sku := input.SKU
	if sku == "" {
		sku = input.Handle + "-default"
	}
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	variant := domain.Variant{
		ID:        uuid.New().String(),
		ProductID: product.ID,
		SKU:       sku,
		Price:     input.Price,
		Currency:  currency,
		IsActive:  true,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO product_variants (id, product_id, sku, price, currency, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, variant.ID, variant.ProductID, variant.SKU, variant.Price, variant.Currency, variant.IsActive, now)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_items (id, variant_id, stock_on_hand, stock_reserved, low_stock_threshold, allow_backorder)
		VALUES ($1, $2, 0, 0, 5, false)
	`, uuid.New().String(), variant.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	variant.Stock = &domain.StockLevel{VariantID: variant.ID, LowStockThreshold: 5}
	product.Variants = []domain.Variant{variant}
	return product, nil
}

type UpdateProductInput struct {
	Title       *string
	Handle      *string
	Description *string
	Status      *domain.ProductStatus
}

// UpdateProduct applies partial field updates. An unknown product id within
// the tenant is reported as not found.
func (r *Repository) UpdateProduct(ctx context.Context, tenantID, productID string, input UpdateProductInput) (*domain.Product, error) {
	query := `UPDATE products SET updated_at = NOW()`
	args := []any{productID, tenantID}

	appendSet := func(column string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(", %s = $%d", column, len(args))
	}

	if input.Title != nil {
		appendSet("title", *input.Title)
	}
	if input.Handle != nil {
		appendSet("handle", *input.Handle)
	}
	if input.Description != nil {
		appendSet("description", *input.Description)
	}
	if input.Status != nil {
		appendSet("status", *input.Status)
	}

	query += ` WHERE id = $1 AND tenant_id = $2`

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	return r.GetProduct(ctx, tenantID, productID)
}

func (r *Repository) GetProduct(ctx context.Context, tenantID, productID string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, handle, COALESCE(description, ''), status, created_at, updated_at
		FROM products
		WHERE id = $1 AND tenant_id = $2
	`, productID, tenantID).Scan(&p.ID, &p.TenantID, &p.Title, &p.Handle, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return nil, err
	}

	return p, nil
}

// DeleteProduct removes the product and its variants and inventory rows.
// Order items are untouched: they copied title, sku and prices at creation
// and stay a historically accurate receipt.
func (r *Repository) DeleteProduct(ctx context.Context, tenantID, productID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM inventory_items
		WHERE variant_id IN (SELECT id FROM product_variants WHERE product_id = $1)
		  AND EXISTS (SELECT 1 FROM products WHERE id = $1 AND tenant_id = $2)
	`, productID, tenantID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM product_variants
		WHERE product_id = $1
		  AND EXISTS (SELECT 1 FROM products WHERE id = $1 AND tenant_id = $2)
	`, productID, tenantID)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1 AND tenant_id = $2
	`, productID, tenantID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}

	return tx.Commit()
}
