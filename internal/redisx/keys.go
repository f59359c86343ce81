package redisx

import "time"

const (
	// Payment status cache for the poll endpoint: paystatus:{order_number}
	KeyPaymentStatus = "paystatus:%s"

	// Dedup for event consumers: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Fast-path shortcut for replayed gateway callbacks:
	// cb:done:{checkout_request_id}. DB conditional update stays the
	// source of truth; this only short-circuits obvious replays.
	KeyCallbackDone = "cb:done:%s"
)

var (
	TTLStatusCache  = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
	TTLCallbackDone = 24 * time.Hour
)
