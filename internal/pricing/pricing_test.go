package pricing

import (
	"testing"

	"github.com/trendstore/commerce-core/internal/domain"
)

func TestCompute(t *testing.T) {
	t.Run("fills line totals and sums subtotal", func(t *testing.T) {
		items := []domain.OrderItem{
			{VariantID: "v1", Quantity: 2, UnitPrice: 6400},
			{VariantID: "v2", Quantity: 2, UnitPrice: 6400},
			{VariantID: "v3", Quantity: 1, UnitPrice: 500},
		}

		totals := Compute(items, 0, 799, 0)

		if items[0].LineTotal != 12800 {
			t.Errorf("expected line total 12800, got %d", items[0].LineTotal)
		}
		if totals.Subtotal != 26100 {
			t.Errorf("expected subtotal 26100, got %d", totals.Subtotal)
		}
		if totals.Total != 26899 {
			t.Errorf("expected total 26899, got %d", totals.Total)
		}
	})

	t.Run("two lines of 6400x2 plus one of 500x1 with 799 shipping", func(t *testing.T) {
		// 12800 + 500 = 13300 subtotal, + 799 shipping = 14099.
		items := []domain.OrderItem{
			{VariantID: "v1", Quantity: 2, UnitPrice: 6400},
			{VariantID: "v2", Quantity: 1, UnitPrice: 500},
		}

		totals := Compute(items, 0, 799, 0)

		if totals.Subtotal != 13300 {
			t.Errorf("expected subtotal 13300, got %d", totals.Subtotal)
		}
		if totals.Total != 14099 {
			t.Errorf("expected total 14099, got %d", totals.Total)
		}
	})

	t.Run("discount subtracts from total", func(t *testing.T) {
		items := []domain.OrderItem{{VariantID: "v1", Quantity: 1, UnitPrice: 1000}}

		totals := Compute(items, 100, 200, 300)

		if totals.Total != 1000 {
			t.Errorf("expected total 1000, got %d", totals.Total)
		}
	})

	t.Run("empty items", func(t *testing.T) {
		totals := Compute(nil, 0, 0, 0)
		if totals.Subtotal != 0 || totals.Total != 0 {
			t.Errorf("expected zero totals, got %+v", totals)
		}
	})
}

func TestCartSubtotal(t *testing.T) {
	items := []domain.CartItem{
		{VariantID: "v1", Quantity: 3, UnitPrice: 250},
		{VariantID: "v2", Quantity: 1, UnitPrice: 999},
	}

	if got := CartSubtotal(items); got != 1749 {
		t.Errorf("expected 1749, got %d", got)
	}
}
