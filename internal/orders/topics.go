package orders

const (
	TopicNotifyConfirmation = "notify.order.confirmation"
	TopicNotifyStatus       = "notify.order.status"
)

// Partition key = order_id so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
