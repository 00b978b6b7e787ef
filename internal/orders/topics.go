package orders

const (
	TopicOrderCreated     = "order.created"
	TopicPaymentConfirmed = "order.payment.confirmed"
	TopicOrderCancelled   = "order.cancelled"
	TopicStatusChanged    = "order.status.changed"
)

// Topics lists every lifecycle topic; the notifier subscribes to all.
var Topics = []string{
	TopicOrderCreated,
	TopicPaymentConfirmed,
	TopicOrderCancelled,
	TopicStatusChanged,
}

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
