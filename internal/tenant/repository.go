// Package tenant resolves tenant identities. Every storage-touching
// component takes the resolved tenant id and scopes its queries by it;
// cross-tenant access is structurally impossible because no repository
// method accepts an empty tenant.
package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trendstore/commerce-core/internal/domain"
)

type Repository struct {
	db          *sql.DB
	defaultSlug string
}

func NewRepository(db *sql.DB, defaultSlug string) *Repository {
	return &Repository{db: db, defaultSlug: defaultSlug}
}

// Resolve maps a storefront slug to its tenant. An empty slug falls back to
// the configured default. Missing or deactivated tenants are reported as not
// found.
func (r *Repository) Resolve(ctx context.Context, slug string) (*domain.Tenant, error) {
	if slug == "" {
		slug = r.defaultSlug
	}

	tenant := &domain.Tenant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, slug, is_active, created_at
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.IsActive, &tenant.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tenant %q: %w", slug, domain.ErrNotFound)
		}
		return nil, err
	}

	if !tenant.IsActive {
		return nil, fmt.Errorf("tenant %q: %w", slug, domain.ErrNotFound)
	}

	return tenant, nil
}
