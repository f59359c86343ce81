package orders

import (
	"encoding/json"
	"time"
)

const (
	EventPaymentRequested = "PaymentRequested"
	EventPaymentCompleted = "PaymentCompleted"
	EventPaymentFailed    = "PaymentFailed"
	EventOrderCancelled   = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number
	Payload       json.RawMessage `json:"payload"`
}

// ---- payload per event ----

type PaymentRequestedPayload struct {
	OrderNumber       string `json:"order_number"`
	UserID            string `json:"user_id"`
	PhoneNumber       string `json:"phone_number"`
	AmountCents       int64  `json:"amount_cents"`
	CheckoutRequestID string `json:"checkout_request_id"`
}

type PaymentCompletedPayload struct {
	OrderNumber   string `json:"order_number"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	AmountCents   int64  `json:"amount_cents"`
}

type PaymentFailedPayload struct {
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
}

type OrderCancelledPayload struct {
	OrderNumber string `json:"order_number"`
	Reason      string `json:"reason"`
	Actor       string `json:"actor"`
}
