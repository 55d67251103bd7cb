package domain

import "time"

type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "DRAFT"
	ProductStatusPublished ProductStatus = "PUBLISHED"
	ProductStatusArchived  ProductStatus = "ARCHIVED"
)

type Product struct {
	ID          string        `json:"id"`
	TenantID    string        `json:"tenant_id"`
	Title       string        `json:"title"`
	Handle      string        `json:"handle"`
	Description string        `json:"description,omitempty"`
	Status      ProductStatus `json:"status"`
	Variants    []Variant     `json:"variants,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Variant is the unit at which price and stock are tracked. Price is in
// integer minor currency units.
type Variant struct {
	ID        string      `json:"id"`
	ProductID string      `json:"product_id"`
	Title     string      `json:"title,omitempty"`
	SKU       string      `json:"sku,omitempty"`
	Price     int64       `json:"price"`
	Currency  string      `json:"currency"`
	IsActive  bool        `json:"is_active"`
	Stock     *StockLevel `json:"stock,omitempty"`
}
