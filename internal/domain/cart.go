package domain

import "time"

// Cart is mutable until an order is materialized from it. After that the
// cart keeps its rows but is consumed: OrderID is set and mutations are
// rejected.
type Cart struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	CustomerID string     `json:"customer_id,omitempty"`
	OrderID    string     `json:"order_id,omitempty"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem snapshots the unit price at add time. It is never re-read from
// the catalog once stored, so a mid-session price change does not alter an
// already built cart.
type CartItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

func (c *Cart) Consumed() bool {
	return c.OrderID != ""
}
