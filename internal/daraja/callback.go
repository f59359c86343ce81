package daraja

import (
	"fmt"
	"strconv"
	"time"
)

// Wire format of the asynchronous settlement notification.
type CallbackEnvelope struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// Value is string for the receipt, numeric for amount and date.
type MetadataItem struct {
	Name  string `json:"Name"`
	Value any    `json:"Value,omitempty"`
}

// SettlementDetails is the successful-payment metadata extracted from
// the callback item list.
type SettlementDetails struct {
	ReceiptNumber   string
	Amount          int64 // whole currency units, as charged
	HasAmount       bool
	TransactionDate *time.Time
}

// Metadata walks the item list. Missing items are tolerated: the
// gateway omits the block entirely on failures and has been observed to
// drop individual items.
func (cb StkCallback) Metadata() SettlementDetails {
	var d SettlementDetails
	if cb.CallbackMetadata == nil {
		return d
	}
	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "MpesaReceiptNumber":
			if s, ok := item.Value.(string); ok {
				d.ReceiptNumber = s
			}
		case "Amount":
			if n, ok := asInt64(item.Value); ok {
				d.Amount = n
				d.HasAmount = true
			}
		case "TransactionDate":
			if t, ok := parseCompactTime(item.Value); ok {
				d.TransactionDate = &t
			}
		}
	}
	return d
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// parseCompactTime handles the gateway's numeric YYYYMMDDHHMMSS format,
// which arrives either as a JSON number or a string.
func parseCompactTime(v any) (time.Time, bool) {
	var s string
	switch x := v.(type) {
	case float64:
		s = fmt.Sprintf("%.0f", x)
	case string:
		s = x
	default:
		return time.Time{}, false
	}
	t, err := time.ParseInLocation("20060102150405", s, gatewayTZ)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Ack is the acknowledgment body the callback endpoint returns to the
// gateway. ResultCode 0 stops retries; 1 induces exactly one retry.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

func AckAccepted() Ack         { return Ack{ResultCode: 0, ResultDesc: "Accepted"} }
func AckError(desc string) Ack { return Ack{ResultCode: 1, ResultDesc: desc} }
