package domain

import "time"

type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid            OrderStatus = "PAID"
	OrderStatusFulfilling      OrderStatus = "FULFILLING"
	OrderStatusFulfilled       OrderStatus = "FULFILLED"
	OrderStatusDelivered       OrderStatus = "DELIVERED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusReturnRequested OrderStatus = "RETURN_REQUESTED"
	OrderStatusReturned        OrderStatus = "RETURNED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
	OrderStatusClosed          OrderStatus = "CLOSED"
)

// orderTransitions is the full status machine. A rejected return closes the
// order rather than canceling it, and REFUNDED is reachable directly from
// PAID and CANCELED for payment reversals.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:  {OrderStatusPaid, OrderStatusCanceled},
	OrderStatusPaid:            {OrderStatusFulfilling, OrderStatusCanceled, OrderStatusRefunded},
	OrderStatusFulfilling:      {OrderStatusFulfilled},
	OrderStatusFulfilled:       {OrderStatusDelivered},
	OrderStatusDelivered:       {OrderStatusReturnRequested},
	OrderStatusReturnRequested: {OrderStatusReturned, OrderStatusClosed},
	OrderStatusReturned:        {OrderStatusRefunded},
	OrderStatusCanceled:        {OrderStatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusFulfilling,
		OrderStatusFulfilled, OrderStatusDelivered, OrderStatusCanceled,
		OrderStatusReturnRequested, OrderStatusReturned, OrderStatusRefunded,
		OrderStatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether target is a legal next status. Re-applying
// the current status is allowed; callers treat it as a no-op.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if s == target {
		return true
	}
	for _, t := range orderTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// OrderItem is a historically accurate receipt line: title, sku and prices
// are copied at creation time and survive later edits or deletion of the
// source variant.
type OrderItem struct {
	VariantID string `json:"variant_id"`
	Title     string `json:"title"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

// Order pricing fields are computed once at creation and never recomputed;
// only Status changes afterwards.
type Order struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenant_id"`
	CustomerID    string      `json:"customer_id,omitempty"`
	Status        OrderStatus `json:"status"`
	Currency      string      `json:"currency"`
	Subtotal      int64       `json:"subtotal"`
	TaxTotal      int64       `json:"tax_total"`
	ShippingTotal int64       `json:"shipping_total"`
	DiscountTotal int64       `json:"discount_total"`
	Total         int64       `json:"total"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
