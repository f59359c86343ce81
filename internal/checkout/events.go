package checkout

import (
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/dukahub/paybill-core/internal/kafka"
	"github.com/dukahub/paybill-core/internal/orders"
)

// publish hands a lifecycle event to the notification sink. Best
// effort: the durable order/payment rows are the source of truth and
// the producer retries internally.
func (s *Service) publish(eventType, orderNumber string, payload any) {
	if s.Producer == nil {
		return
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Policy.ServiceName,
		CorrelationID: orderNumber,
		Payload:       kafkax.MustMarshal(payload),
	}
	s.Producer.Publish(orders.PartitionKey(orderNumber), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
