package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukahub/paybill-core/internal/daraja"
	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/payments"
)

// pendingCheckout runs a full checkout so the fixture holds a pending
// payment addressable by checkout request id "ws_CO_1", total 136000
// cents (1360 whole units), with stock drawn down from 5 to 3.
func pendingCheckout(t *testing.T, f *fixture) string {
	t.Helper()
	res, err := f.svc.Checkout(context.Background(), CheckoutInput{
		UserID: "u1", PhoneNumber: "254712345678", AccountReference: "ACC1",
	})
	require.NoError(t, err)
	f.pub.events = nil
	return res.OrderNumber
}

func successCallback(amountUnits int64) daraja.StkCallback {
	return daraja.StkCallback{
		MerchantRequestID: "MR-1",
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		CallbackMetadata: &daraja.CallbackMetadata{Item: []daraja.MetadataItem{
			{Name: "Amount", Value: float64(amountUnits)},
			{Name: "MpesaReceiptNumber", Value: "NLJ7RT61SV"},
			{Name: "TransactionDate", Value: float64(20250901143000)},
			{Name: "PhoneNumber", Value: float64(254712345678)},
		}},
	}
}

func TestReconcileSettlesPayment(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	res, err := f.svc.Reconcile(context.Background(), successCallback(1360))
	require.NoError(t, err)
	assert.Equal(t, ReconcileSettled, res)

	o := f.store.orders[orderNumber]
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, orders.PayStatePaid, o.PaymentStatus)

	p := f.store.payments[orderNumber]
	assert.Equal(t, payments.StatusCompleted, p.Status)
	require.NotNil(t, p.ReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *p.ReceiptNumber)
	require.NotNil(t, p.TransactionDate)
	assert.Equal(t, 2025, p.TransactionDate.Year())

	assert.Equal(t, 3, f.store.stock["p1"], "settlement must not touch stock")
	assert.Equal(t, []string{orders.EventPaymentCompleted}, f.pub.types())
}

func TestReconcileFailureCancelsAndRestores(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	res, err := f.svc.Reconcile(context.Background(), daraja.StkCallback{
		CheckoutRequestID: "ws_CO_1",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileFailed, res)

	o := f.store.orders[orderNumber]
	assert.Equal(t, orders.StatusCancelled, o.Status)

	p := f.store.payments[orderNumber]
	assert.Equal(t, payments.StatusFailed, p.Status)
	assert.Equal(t, "1032", p.ResultCode)

	assert.Equal(t, 5, f.store.stock["p1"], "failure must restore the reservation")
	assert.Equal(t, []string{orders.EventPaymentFailed, orders.EventOrderCancelled}, f.pub.types())
}

func TestReconcileReplayIsNoOp(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	_, err := f.svc.Reconcile(context.Background(), successCallback(1360))
	require.NoError(t, err)
	f.pub.events = nil

	res, err := f.svc.Reconcile(context.Background(), successCallback(1360))
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, res)

	// a failure replay after settlement must not cancel either
	res, err = f.svc.Reconcile(context.Background(), daraja.StkCallback{
		CheckoutRequestID: "ws_CO_1", ResultCode: 1037, ResultDesc: "timeout",
	})
	require.NoError(t, err)
	assert.Equal(t, ReconcileDuplicate, res)

	o := f.store.orders[orderNumber]
	assert.Equal(t, orders.StatusProcessing, o.Status)
	assert.Equal(t, 3, f.store.stock["p1"])
	assert.Empty(t, f.pub.types(), "replays publish nothing")
}

func TestReconcileUnknownCheckoutID(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	pendingCheckout(t, f)

	res, err := f.svc.Reconcile(context.Background(), daraja.StkCallback{
		CheckoutRequestID: "ws_CO_never_issued",
		ResultCode:        0,
	})
	require.NoError(t, err, "a lookup miss is logically handled, not an error")
	assert.Equal(t, ReconcileNotFound, res)
	assert.Equal(t, 3, f.store.stock["p1"])
}

func TestReconcileMissingCheckoutID(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))

	_, err := f.svc.Reconcile(context.Background(), daraja.StkCallback{ResultCode: 0})
	require.ErrorIs(t, err, ErrMalformedCallback)
}

func TestReconcileAmountMismatchWarnOnly(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	// settled 1000, expected 1360; default policy flags but proceeds
	res, err := f.svc.Reconcile(context.Background(), successCallback(1000))
	require.NoError(t, err)
	assert.Equal(t, ReconcileSettled, res)
	assert.Equal(t, payments.StatusCompleted, f.store.payments[orderNumber].Status)
}

func TestReconcileAmountMismatchStrict(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	f.svc.Policy.StrictAmountMatch = true
	orderNumber := pendingCheckout(t, f)

	res, err := f.svc.Reconcile(context.Background(), successCallback(1000))
	require.NoError(t, err)
	assert.Equal(t, ReconcileFailed, res)

	p := f.store.payments[orderNumber]
	assert.Equal(t, payments.StatusFailed, p.Status)
	assert.Contains(t, p.ResultDescription, "amount mismatch")
	assert.Equal(t, 5, f.store.stock["p1"], "strict mismatch restores stock")
}

func TestStatusAfterSettlement(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	view, err := f.svc.Status(context.Background(), orderNumber, "u1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, view.OrderStatus)
	assert.True(t, view.PaymentCreated)
	assert.Equal(t, payments.StatusPending, view.PaymentStatus)

	_, err = f.svc.Reconcile(context.Background(), successCallback(1360))
	require.NoError(t, err)

	view, err = f.svc.Status(context.Background(), orderNumber, "u1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, view.OrderStatus)
	assert.Equal(t, payments.StatusCompleted, view.PaymentStatus)
	assert.Equal(t, "NLJ7RT61SV", view.ReceiptNumber)
}

func TestStatusScopedToOwner(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 5}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	_, err := f.svc.Status(context.Background(), orderNumber, "someone-else")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSweepStalePending(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 10}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)

	// fresh pending payments stay
	swept, err := f.svc.SweepStalePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)

	f.store.payments[orderNumber].CreatedAt = time.Now().Add(-time.Hour)
	swept, err = f.svc.SweepStalePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	assert.Equal(t, orders.StatusCancelled, f.store.orders[orderNumber].Status)
	assert.Equal(t, payments.StatusCancelled, f.store.payments[orderNumber].Status)
	assert.Equal(t, 10, f.store.stock["p1"], "sweep restores the reservation")
	assert.Equal(t, []string{orders.EventOrderCancelled}, f.pub.types())

	// idempotent: the payment is no longer pending
	swept, err = f.svc.SweepStalePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
}

func TestSweepDisabledByZeroExpiry(t *testing.T) {
	f := newFixture(t, map[string]int{"p1": 10}, oneItemCart("u1", "p1", 50000, 2))
	orderNumber := pendingCheckout(t, f)
	f.svc.Policy.PendingExpiry = 0
	f.store.payments[orderNumber].CreatedAt = time.Now().Add(-24 * time.Hour)

	swept, err := f.svc.SweepStalePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Equal(t, payments.StatusPending, f.store.payments[orderNumber].Status)
}
