package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/dukahub/paybill-core/internal/cart"
	"github.com/dukahub/paybill-core/internal/daraja"
	"github.com/dukahub/paybill-core/internal/metrics"
	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/payments"
)

// Kenyan MSISDN: country code plus nine digits, no plus sign.
var phoneRe = regexp.MustCompile(`^254\d{9}$`)

// ErrPaymentInit is the generic user-facing outcome for every gateway
// failure mode; the detailed reason only goes to logs and the payment
// record.
var ErrPaymentInit = errors.New("payment could not be initiated")

type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

type CartStore interface {
	Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error)
}

type OrderStore interface {
	CreateFromCart(ctx context.Context, p orders.CreateParams) (*orders.Order, *payments.Payment, error)
	ByNumberForUser(ctx context.Context, orderNumber, userID string) (*orders.Order, error)
}

type PaymentStore interface {
	AttachGatewayIDs(ctx context.Context, orderNumber, merchantRequestID, checkoutRequestID string) error
	ByCheckoutID(ctx context.Context, checkoutRequestID string) (*payments.Payment, error)
	ByOrder(ctx context.Context, orderNumber string) (*payments.Payment, error)
	Settle(ctx context.Context, s payments.Settlement) (payments.Outcome, string, error)
	Fail(ctx context.Context, f payments.Failure) (payments.Outcome, string, error)
	Abort(ctx context.Context, orderNumber, reason, actor string, to payments.Status) (bool, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]string, error)
}

type Gateway interface {
	RequestPush(ctx context.Context, req daraja.PushRequest) (*daraja.PushResponse, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Policy struct {
	ServiceName       string
	Shortcode         string
	ShippingCents     int64
	TaxRateBps        int64
	StrictAmountMatch bool
	PendingExpiry     time.Duration
}

type Service struct {
	Carts    CartStore
	Orders   OrderStore
	Payments PaymentStore
	Gateway  Gateway
	Producer Publisher
	Redis    *redis.Client // optional fast-path cache; DB stays the truth
	Log      *slog.Logger
	Metrics  *metrics.Checkout
	Policy   Policy
}

type CheckoutInput struct {
	UserID           string
	PhoneNumber      string
	AccountReference string
	DeliveryAddress  string
}

type CheckoutResult struct {
	OrderNumber       string
	CheckoutRequestID string
	TotalCents        int64
	CustomerMessage   string
}

// Checkout turns the user's cart into a pending order awaiting
// settlement. Validation happens before any mutation; order, items,
// stock decrements, cart clear and the payment row commit as one
// transaction; the gateway push runs outside that boundary and a push
// failure triggers a second, corrective transaction.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if err := validateInput(in); err != nil {
		s.Metrics.Checkouts.WithLabelValues("validation").Inc()
		return nil, err
	}

	snap, err := s.Carts.Snapshot(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	if snap.Empty() {
		s.Metrics.Checkouts.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Msg: "your cart is empty"}
	}

	totals := s.totalsFor(snap.SubtotalCents())
	order, _, err := s.Orders.CreateFromCart(ctx, orders.CreateParams{
		UserID:          in.UserID,
		Snapshot:        snap,
		Totals:          totals,
		PhoneNumber:     in.PhoneNumber,
		DeliveryAddress: in.DeliveryAddress,
		Shortcode:       s.Policy.Shortcode,
		AccountRef:      in.AccountReference,
	})
	if err != nil {
		s.Metrics.Checkouts.WithLabelValues("stock").Inc()
		return nil, err
	}

	started := time.Now()
	ack, err := s.Gateway.RequestPush(ctx, daraja.PushRequest{
		PhoneNumber:      in.PhoneNumber,
		AmountCents:      order.Totals.TotalCents,
		AccountReference: in.AccountReference,
		Description:      "Order " + order.OrderNumber,
	})
	s.Metrics.PushLatencyMS.Observe(float64(time.Since(started).Milliseconds()))
	if err != nil {
		s.compensatePushFailure(ctx, order.OrderNumber, err)
		s.Metrics.Checkouts.WithLabelValues("gateway").Inc()
		return nil, fmt.Errorf("%w: %s", ErrPaymentInit, daraja.KindOf(err))
	}

	if err := s.Payments.AttachGatewayIDs(ctx, order.OrderNumber, ack.MerchantRequestID, ack.CheckoutRequestID); err != nil {
		// the push already went out; never compensate a live request
		s.Log.Error("attach gateway ids failed", "order", order.OrderNumber, "err", err)
	}

	s.cachePaymentStatus(ctx, order.OrderNumber, payments.StatusPending, order.Status)
	s.publish(orders.EventPaymentRequested, order.OrderNumber, orders.PaymentRequestedPayload{
		OrderNumber:       order.OrderNumber,
		UserID:            in.UserID,
		PhoneNumber:       in.PhoneNumber,
		AmountCents:       order.Totals.TotalCents,
		CheckoutRequestID: ack.CheckoutRequestID,
	})
	s.Metrics.Checkouts.WithLabelValues("requested").Inc()
	s.Log.Info("stk push initiated",
		"order", order.OrderNumber,
		"checkout_request_id", ack.CheckoutRequestID,
		"amount_cents", order.Totals.TotalCents)

	msg := ack.CustomerMessage
	if msg == "" {
		msg = "Payment request sent. Check your phone to complete payment."
	}
	return &CheckoutResult{
		OrderNumber:       order.OrderNumber,
		CheckoutRequestID: ack.CheckoutRequestID,
		TotalCents:        order.Totals.TotalCents,
		CustomerMessage:   msg,
	}, nil
}

func (s *Service) compensatePushFailure(ctx context.Context, orderNumber string, pushErr error) {
	reason := "push request failed: " + pushErr.Error()
	s.Log.Error("stk push failed, compensating",
		"order", orderNumber,
		"kind", string(daraja.KindOf(pushErr)),
		"err", pushErr)

	applied, err := s.Payments.Abort(ctx, orderNumber, reason, "checkout", payments.StatusFailed)
	if err != nil {
		// stock stays wrongly reserved until an operator intervenes;
		// this is the alerting path
		s.Metrics.CompensationFailures.Inc()
		s.Log.Error("COMPENSATION FAILED, inventory still reserved",
			"order", orderNumber, "err", err)
		return
	}
	if !applied {
		return
	}
	s.cachePaymentStatus(ctx, orderNumber, payments.StatusFailed, orders.StatusCancelled)
	s.publish(orders.EventPaymentFailed, orderNumber, orders.PaymentFailedPayload{
		OrderNumber: orderNumber,
		Reason:      reason,
	})
	s.publish(orders.EventOrderCancelled, orderNumber, orders.OrderCancelledPayload{
		OrderNumber: orderNumber,
		Reason:      reason,
		Actor:       "checkout",
	})
}

func validateInput(in CheckoutInput) error {
	if in.UserID == "" {
		return &ValidationError{Msg: "missing user"}
	}
	if !phoneRe.MatchString(in.PhoneNumber) {
		return &ValidationError{Msg: "phone number must be 12 digits starting with 254 (e.g. 254712345678)"}
	}
	if in.AccountReference == "" {
		return &ValidationError{Msg: "account number is required"}
	}
	return nil
}

func (s *Service) totalsFor(subtotalCents int64) orders.Totals {
	t := orders.Totals{
		SubtotalCents: subtotalCents,
		ShippingCents: s.Policy.ShippingCents,
		TaxCents:      subtotalCents * s.Policy.TaxRateBps / 10000,
	}
	t.TotalCents = t.SubtotalCents + t.ShippingCents + t.TaxCents - t.DiscountCents
	return t
}
