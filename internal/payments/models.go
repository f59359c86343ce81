package payments

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool { return s != StatusPending }

// Payment is the one-to-one settlement record for an order. The
// checkout_request_id is populated only after the gateway acknowledges
// the push request; until then the record is not externally addressable.
type Payment struct {
	ID                string
	OrderNumber       string
	PhoneNumber       string
	AmountCents       int64
	BusinessShortcode string
	AccountReference  string
	MerchantRequestID *string
	CheckoutRequestID *string
	ReceiptNumber     *string
	TransactionDate   *time.Time
	Status            Status
	ResultCode        string
	ResultDescription string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WholeUnits truncates cents to whole currency units; the gateway does
// not accept decimals.
func WholeUnits(cents int64) int64 { return cents / 100 }
