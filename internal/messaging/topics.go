package messaging

// Topics carrying order lifecycle events. Messages are keyed by order id so
// one order's events stay ordered within a partition.
const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)
