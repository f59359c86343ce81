package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/dukahub/paybill-core/internal/kafka"
	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/redisx"
)

// Service consumes order/payment lifecycle events and hands them to the
// customer-notification channel. Delivery itself (SMS/email) is a
// collaborator behind the log sink here; this worker owns dedup and
// fan-out by event type.
type Service struct {
	Redis       *redis.Client
	Log         *slog.Logger
	ServiceName string
}

func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	// dedup by event id so consumer-group rebalances never double-text
	// a customer
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	switch env.EventType {
	case orders.EventPaymentRequested:
		p, err := kafkax.UnwrapPayload[orders.PaymentRequestedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notify: payment prompt sent",
			"order", p.OrderNumber, "phone", p.PhoneNumber, "amount_cents", p.AmountCents)
	case orders.EventPaymentCompleted:
		p, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notify: order confirmed",
			"order", p.OrderNumber, "receipt", p.ReceiptNumber)
	case orders.EventPaymentFailed:
		p, err := kafkax.UnwrapPayload[orders.PaymentFailedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notify: payment failed",
			"order", p.OrderNumber, "reason", p.Reason)
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		s.Log.Info("notify: order cancelled",
			"order", p.OrderNumber, "reason", p.Reason, "actor", p.Actor)
	default:
		// unknown event versions are skipped, not retried
		s.Log.Warn("unknown event type", "type", env.EventType)
	}
	return nil
}
