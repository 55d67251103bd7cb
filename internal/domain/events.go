package domain

import "time"

type OrderCreatedEvent struct {
	OrderID    string      `json:"order_id"`
	TenantID   string      `json:"tenant_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	Items      []OrderItem `json:"items"`
	Total      int64       `json:"total"`
	Currency   string      `json:"currency"`
	Timestamp  time.Time   `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID    string      `json:"order_id"`
	TenantID   string      `json:"tenant_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	From       OrderStatus `json:"from"`
	To         OrderStatus `json:"to"`
	Timestamp  time.Time   `json:"timestamp"`
}
