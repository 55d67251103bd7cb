package domain

// StockLevel is the inventory accounting for one variant. Available to sell
// is OnHand - Reserved and must never go negative unless AllowBackorder.
type StockLevel struct {
	VariantID         string `json:"variant_id"`
	OnHand            int    `json:"stock_on_hand"`
	Reserved          int    `json:"stock_reserved"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	AllowBackorder    bool   `json:"allow_backorder"`
}

func (s StockLevel) Available() int {
	return s.OnHand - s.Reserved
}

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
)

// Reservation is a hold against available stock taken at order creation.
// It is either committed (stock permanently decremented when fulfillment
// starts) or released (hold undone on cancellation).
type Reservation struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	VariantID string            `json:"variant_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
}
