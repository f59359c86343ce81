package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/payments"
	"github.com/dukahub/paybill-core/internal/redisx"
)

var ErrOrderNotFound = orders.ErrNotFound

// StatusView is what a client polling for settlement sees while the
// asynchronous callback is still in flight.
type StatusView struct {
	OrderNumber       string          `json:"order_number"`
	OrderStatus       orders.Status   `json:"order_status"`
	PaymentCreated    bool            `json:"payment_created"`
	PaymentStatus     payments.Status `json:"payment_status,omitempty"`
	ResultDescription string          `json:"result_description,omitempty"`
	ReceiptNumber     string          `json:"mpesa_receipt,omitempty"`
	TransactionDate   *time.Time      `json:"transaction_date,omitempty"`
}

// Status is the synchronous read path. Lookup is scoped to the
// requesting user; a missing payment record is a distinct
// "not yet created" view, not an error.
func (s *Service) Status(ctx context.Context, orderNumber, userID string) (*StatusView, error) {
	order, err := s.Orders.ByNumberForUser(ctx, orderNumber, userID)
	if err != nil {
		return nil, err
	}

	// ownership proven; the payment part may come from cache
	if view, ok := s.cachedStatus(ctx, orderNumber); ok {
		return view, nil
	}

	view := &StatusView{OrderNumber: orderNumber, OrderStatus: order.Status}
	p, err := s.Payments.ByOrder(ctx, orderNumber)
	if errors.Is(err, payments.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	view.PaymentCreated = true
	view.PaymentStatus = p.Status
	view.ResultDescription = p.ResultDescription
	if p.ReceiptNumber != nil {
		view.ReceiptNumber = *p.ReceiptNumber
	}
	view.TransactionDate = p.TransactionDate

	s.cacheView(ctx, view)
	return view, nil
}

func (s *Service) cachedStatus(ctx context.Context, orderNumber string) (*StatusView, bool) {
	if s.Redis == nil {
		return nil, false
	}
	raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyPaymentStatus, orderNumber)).Result()
	if err != nil || raw == "" {
		return nil, false
	}
	var v StatusView
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return &v, true
}

func (s *Service) cacheView(ctx context.Context, v *StatusView) {
	if s.Redis == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = s.Redis.Set(ctx, fmt.Sprintf(redisx.KeyPaymentStatus, v.OrderNumber), b, redisx.TTLStatusCache).Err()
}

// cachePaymentStatus refreshes the poll cache after a state change so
// pollers see the new state without a DB round trip.
func (s *Service) cachePaymentStatus(ctx context.Context, orderNumber string, ps payments.Status, os orders.Status) {
	s.cacheView(ctx, &StatusView{
		OrderNumber:    orderNumber,
		OrderStatus:    os,
		PaymentCreated: true,
		PaymentStatus:  ps,
	})
}
