// Package customer manages storefront customer records. Orders and carts
// may reference a customer; the reference is always resolved within the
// caller's tenant before it is attached.
package customer

import (
	"context"
	"database/sql"
	"errors"
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

// Resolve returns the customer only if it belongs to the tenant. A customer
// id from another tenant is indistinguishable from a missing one.
func (r *Repository) Resolve(ctx context.Context, tenantID, customerID string) (*domain.Customer, error) {
	customer := &domain.Customer{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, COALESCE(name, ''), created_at
		FROM customers
		WHERE id = $1 AND tenant_id = $2
	`, customerID, tenantID).Scan(&customer.ID, &customer.TenantID, &customer.Email, &customer.Name, &customer.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("customer %s: %w", customerID, domain.ErrNotFound)
		}
		return nil, err
	}

	return customer, nil
}

// List returns the tenant's customers, most recent first.
func (r *Repository) List(ctx context.Context, tenantID string) ([]domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, email, COALESCE(name, ''), created_at
		FROM customers
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	customers := []domain.Customer{}
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Email, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}

	return customers, rows.Err()
}

// Create registers a customer. Email is unique per tenant; a duplicate is
// reported as a conflict.
func (r *Repository) Create(ctx context.Context, tenantID, email, name string) (*domain.Customer, error) {
	customer := &domain.Customer{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Email:     email,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, tenant_id, email, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, customer.ID, customer.TenantID, customer.Email, customer.Name, customer.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("customer email %s already registered: %w", email, domain.ErrConflict)
		}
		return nil, err
	}

	return customer, nil
}
