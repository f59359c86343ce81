package checkout

import (
	"context"
	"time"

	"github.com/dukahub/paybill-core/internal/orders"
	"github.com/dukahub/paybill-core/internal/payments"
)

// SweepStalePending cancels payments that have sat pending longer than
// the configured expiry with no callback ever arriving, restoring their
// stock. The abort uses the same transition-only-if-pending guard as
// the reconciler, so a callback racing the sweep wins or loses cleanly.
// Returns the number of payments swept.
func (s *Service) SweepStalePending(ctx context.Context) (int, error) {
	if s.Policy.PendingExpiry <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-s.Policy.PendingExpiry)
	stale, err := s.Payments.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, orderNumber := range stale {
		reason := "no settlement callback within " + s.Policy.PendingExpiry.String()
		applied, err := s.Payments.Abort(ctx, orderNumber, reason, "sweeper", payments.StatusCancelled)
		if err != nil {
			s.Metrics.CompensationFailures.Inc()
			s.Log.Error("sweep abort failed", "order", orderNumber, "err", err)
			continue
		}
		if !applied {
			// a callback settled or failed it between the list and the
			// abort; nothing to sweep
			continue
		}
		s.cachePaymentStatus(ctx, orderNumber, payments.StatusCancelled, orders.StatusCancelled)
		s.publish(orders.EventOrderCancelled, orderNumber, orders.OrderCancelledPayload{
			OrderNumber: orderNumber,
			Reason:      reason,
			Actor:       "sweeper",
		})
		s.Log.Warn("stale pending payment swept", "order", orderNumber)
		swept++
	}
	return swept, nil
}

// RunSweeper loops until the context ends. Interval and expiry come
// from config; an expiry of 0 disables sweeping entirely.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.Policy.PendingExpiry <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.SweepStalePending(ctx); err != nil {
				s.Log.Error("sweep failed", "err", err)
			} else if n > 0 {
				s.Log.Info("swept stale pending payments", "count", n)
			}
		}
	}
}
