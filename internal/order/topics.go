package order

const (
	// All order lifecycle events share one topic; the partition key keeps
	// events for a single order in order.
	TopicOrderEvents = "order.events"

	// Emitted by the payment coordinator, consumed by the fulfillment worker
	// to drive pending -> processing.
	TopicPaymentSucceeded = "payment.succeeded"
)

func PartitionKey(orderID string) []byte { return []byte(orderID) }
