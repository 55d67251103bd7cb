package orders

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	meter = otel.Meter("orders")

	ordersCreated       metric.Int64Counter
	checkoutsOutOfStock metric.Int64Counter
	orderTransitions    metric.Int64Counter
)

func init() {
	ordersCreated, _ = meter.Int64Counter("commerce.orders.created",
		metric.WithDescription("Orders successfully created"))
	checkoutsOutOfStock, _ = meter.Int64Counter("commerce.orders.insufficient_stock",
		metric.WithDescription("Order creation attempts rejected for insufficient stock"))
	orderTransitions, _ = meter.Int64Counter("commerce.orders.transitions",
		metric.WithDescription("Order status transitions applied"))
}
