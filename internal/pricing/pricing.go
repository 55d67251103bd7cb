// Package pricing computes order totals from line items. It is pure integer
// arithmetic over minor currency units; it never reads live catalog prices.
package pricing

import "github.com/trendstore/commerce-core/internal/domain"

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Total    int64 `json:"total"`
}

// LineTotal is quantity * unit price.
func LineTotal(quantity int, unitPrice int64) int64 {
	return int64(quantity) * unitPrice
}

// Compute fills in line totals on items and returns subtotal and total.
// Tax, shipping and discount come from an external pricing collaborator and
// default to zero.
func Compute(items []domain.OrderItem, taxTotal, shippingTotal, discountTotal int64) Totals {
	var subtotal int64
	for i := range items {
		items[i].LineTotal = LineTotal(items[i].Quantity, items[i].UnitPrice)
		subtotal += items[i].LineTotal
	}
	return Totals{
		Subtotal: subtotal,
		Total:    subtotal + taxTotal + shippingTotal - discountTotal,
	}
}

// CartSubtotal sums quantity * snapshotted unit price over cart lines.
func CartSubtotal(items []domain.CartItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += LineTotal(item.Quantity, item.UnitPrice)
	}
	return subtotal
}
