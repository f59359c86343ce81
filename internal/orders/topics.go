package orders

// All lifecycle events share one topic; the notifier fans out by
// event type from the envelope header.
const TopicNotifications = "order.notifications"

// Partition key = order number, so events for one order keep their order.
func PartitionKey(orderNumber string) []byte { return []byte(orderNumber) }
