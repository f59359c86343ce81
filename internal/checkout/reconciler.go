package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukahub/paybill-core/internal/daraja"
	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/payments"
	"github.com/dukahub/paybill-core/internal/redisx"
)

// ErrMalformedCallback marks input the endpoint answers with a non-zero
// acknowledgment so the gateway retries exactly once.
var ErrMalformedCallback = errors.New("malformed callback")

type ReconcileResult string

const (
	ReconcileSettled   ReconcileResult = "settled"
	ReconcileFailed    ReconcileResult = "failed"
	ReconcileDuplicate ReconcileResult = "duplicate"
	ReconcileNotFound  ReconcileResult = "not_found"
)

// Reconcile matches a gateway notification to its pending payment and
// transitions order, payment and inventory state in one atomic unit.
// Replays against a payment already in a terminal state are accepted
// and do nothing; both the lookup miss and the duplicate are logically
// handled, so the caller still acknowledges success to the gateway.
func (s *Service) Reconcile(ctx context.Context, cb daraja.StkCallback) (ReconcileResult, error) {
	if cb.CheckoutRequestID == "" {
		s.Metrics.Callbacks.WithLabelValues("malformed").Inc()
		return "", fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}

	// fast-path replay shortcut; the conditional UPDATE below remains
	// the real guard
	if s.Redis != nil {
		key := fmt.Sprintf(redisx.KeyCallbackDone, cb.CheckoutRequestID)
		if done, _ := redisx.Exists(ctx, s.Redis, key); done {
			s.Metrics.Callbacks.WithLabelValues("duplicate").Inc()
			return ReconcileDuplicate, nil
		}
	}

	p, err := s.Payments.ByCheckoutID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, payments.ErrNotFound) {
		// either an id this system never issued, or a callback racing
		// the not-yet-stored acknowledgment; the gateway retries on its
		// own schedule, so log for the operator and accept
		s.Log.Warn("callback for unknown payment",
			"checkout_request_id", cb.CheckoutRequestID,
			"result_code", cb.ResultCode)
		s.Metrics.Callbacks.WithLabelValues("not_found").Inc()
		return ReconcileNotFound, nil
	}
	if err != nil {
		return "", err
	}

	resultCode := strconv.Itoa(cb.ResultCode)
	if cb.ResultCode == 0 {
		return s.reconcileSuccess(ctx, p, cb, resultCode)
	}
	return s.reconcileFailure(ctx, p, resultCode, cb.ResultDesc)
}

func (s *Service) reconcileSuccess(ctx context.Context, p *payments.Payment, cb daraja.StkCallback, resultCode string) (ReconcileResult, error) {
	meta := cb.Metadata()

	if meta.HasAmount && meta.Amount != payments.WholeUnits(p.AmountCents) {
		s.Metrics.AmountMismatches.Inc()
		s.Log.Warn("settled amount differs from payment record",
			"order", p.OrderNumber,
			"expected", payments.WholeUnits(p.AmountCents),
			"settled", meta.Amount)
		if s.Policy.StrictAmountMatch {
			desc := fmt.Sprintf("amount mismatch: expected %d, settled %d",
				payments.WholeUnits(p.AmountCents), meta.Amount)
			return s.reconcileFailure(ctx, p, resultCode, desc)
		}
		// warn-only by default: flagged for manual audit, settlement
		// proceeds
	}

	outcome, orderNumber, err := s.Payments.Settle(ctx, payments.Settlement{
		CheckoutRequestID: *p.CheckoutRequestID,
		ResultCode:        resultCode,
		ResultDescription: cb.ResultDesc,
		ReceiptNumber:     meta.ReceiptNumber,
		TransactionDate:   meta.TransactionDate,
	})
	if err != nil {
		return "", err
	}
	switch outcome {
	case payments.OutcomeAlreadyFinal:
		s.Metrics.Callbacks.WithLabelValues("duplicate").Inc()
		return ReconcileDuplicate, nil
	case payments.OutcomeNotFound:
		s.Metrics.Callbacks.WithLabelValues("not_found").Inc()
		return ReconcileNotFound, nil
	}

	s.markCallbackDone(ctx, *p.CheckoutRequestID)
	s.cacheView(ctx, &StatusView{
		OrderNumber:       orderNumber,
		OrderStatus:       orders.StatusProcessing,
		PaymentCreated:    true,
		PaymentStatus:     payments.StatusCompleted,
		ResultDescription: cb.ResultDesc,
		ReceiptNumber:     meta.ReceiptNumber,
		TransactionDate:   meta.TransactionDate,
	})
	s.publish(orders.EventPaymentCompleted, orderNumber, orders.PaymentCompletedPayload{
		OrderNumber:   orderNumber,
		ReceiptNumber: meta.ReceiptNumber,
		AmountCents:   p.AmountCents,
	})
	s.Metrics.Callbacks.WithLabelValues("settled").Inc()
	s.Log.Info("payment settled",
		"order", orderNumber,
		"receipt", meta.ReceiptNumber)
	return ReconcileSettled, nil
}

func (s *Service) reconcileFailure(ctx context.Context, p *payments.Payment, resultCode, resultDesc string) (ReconcileResult, error) {
	outcome, orderNumber, err := s.Payments.Fail(ctx, payments.Failure{
		CheckoutRequestID: *p.CheckoutRequestID,
		ResultCode:        resultCode,
		ResultDescription: resultDesc,
	})
	if err != nil {
		return "", err
	}
	switch outcome {
	case payments.OutcomeAlreadyFinal:
		s.Metrics.Callbacks.WithLabelValues("duplicate").Inc()
		return ReconcileDuplicate, nil
	case payments.OutcomeNotFound:
		s.Metrics.Callbacks.WithLabelValues("not_found").Inc()
		return ReconcileNotFound, nil
	}

	s.markCallbackDone(ctx, *p.CheckoutRequestID)
	s.cachePaymentStatus(ctx, orderNumber, payments.StatusFailed, orders.StatusCancelled)
	s.publish(orders.EventPaymentFailed, orderNumber, orders.PaymentFailedPayload{
		OrderNumber: orderNumber,
		Reason:      resultDesc,
	})
	s.publish(orders.EventOrderCancelled, orderNumber, orders.OrderCancelledPayload{
		OrderNumber: orderNumber,
		Reason:      resultDesc,
		Actor:       "mpesa-callback",
	})
	s.Metrics.Callbacks.WithLabelValues("failed").Inc()
	s.Log.Warn("payment failed, order cancelled and stock restored",
		"order", orderNumber,
		"result_code", resultCode,
		"result_desc", resultDesc)
	return ReconcileFailed, nil
}

func (s *Service) markCallbackDone(ctx context.Context, checkoutRequestID string) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyCallbackDone, checkoutRequestID)
	_ = s.Redis.Set(ctx, key, "1", redisx.TTLCallbackDone).Err()
}
