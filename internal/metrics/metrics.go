package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Checkout struct {
	Checkouts *prometheus.CounterVec // outcome: requested|validation|stock|gateway|error
	Callbacks *prometheus.CounterVec // result: settled|failed|duplicate|not_found|malformed
	// Failed compensations leave inventory wrongly reserved; this is
	// the counter to alert on.
	CompensationFailures prometheus.Counter
	AmountMismatches     prometheus.Counter
	PushLatencyMS        prometheus.Histogram
}

func New(service string) *Checkout {
	return NewWith(prometheus.DefaultRegisterer, service)
}

func NewWith(reg prometheus.Registerer, service string) *Checkout {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybill",
		Subsystem: service,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by outcome.",
	}, []string{"outcome"})
	callbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybill",
		Subsystem: service,
		Name:      "callbacks_total",
		Help:      "Gateway callbacks by reconciliation result.",
	}, []string{"result"})
	compFail := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paybill",
		Subsystem: service,
		Name:      "compensation_failures_total",
		Help:      "Compensating transactions that could not be applied.",
	})
	mismatch := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "paybill",
		Subsystem: service,
		Name:      "amount_mismatches_total",
		Help:      "Settled amounts that differed from the payment record.",
	})
	pushLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "paybill",
		Subsystem: service,
		Name:      "push_request_duration_ms",
		Help:      "STK push round-trip latency in milliseconds.",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 15000, 30000, 60000},
	})

	reg.MustRegister(checkouts, callbacks, compFail, mismatch, pushLatency)
	return &Checkout{
		Checkouts:            checkouts,
		Callbacks:            callbacks,
		CompensationFailures: compFail,
		AmountMismatches:     mismatch,
		PushLatencyMS:        pushLatency,
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
