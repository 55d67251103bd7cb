package inventory

import (
	"encoding/json"
	"testing"

	"github.com/trendstore/commerce-core/internal/domain"
)

func TestStockResponseAvailable(t *testing.T) {
	t.Run("reports on-hand minus reserved", func(t *testing.T) {
		stock := &domain.StockLevel{VariantID: "v1", OnHand: 10, Reserved: 3}

		resp := newStockResponse(stock)
		if resp.Available != 7 {
			t.Errorf("expected available 7, got %d", resp.Available)
		}

		data, err := json.Marshal(resp)
		if err != nil {
			t.Fatalf("failed to marshal response: %v", err)
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if got, ok := fields["available"]; !ok || got != float64(7) {
			t.Errorf("expected available field 7 in payload, got %v", fields)
		}
	})

	t.Run("goes negative when backorders overdraw", func(t *testing.T) {
		stock := &domain.StockLevel{VariantID: "v1", OnHand: 2, Reserved: 5, AllowBackorder: true}
		if got := newStockResponse(stock).Available; got != -3 {
			t.Errorf("expected available -3, got %d", got)
		}
	})
}
