package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger observers.
type Metrics struct {
	// Resolved declarations by ledger and outcome
	Declarations *prometheus.CounterVec

	// Declarations rejected by validation
	Rejected *prometheus.CounterVec

	// Counter increments caused by foreign records holding a candidate id
	Collisions *prometheus.CounterVec

	// Poll failures by ledger and kind: "source", "store"
	PollErrors *prometheus.CounterVec

	ResolveLatency *prometheus.HistogramVec

	// Next chain index the observer will request
	Cursor *prometheus.GaugeVec
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Declarations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iscc_observer_declarations_total",
			Help: "Total declarations resolved by ledger and outcome",
		}, []string{"ledger", "outcome"}), // outcome: "created", "updated", "skipped"

		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iscc_observer_rejected_total",
			Help: "Total declarations rejected because of an invalid iscc code",
		}, []string{"ledger"}),

		Collisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iscc_observer_collisions_total",
			Help: "Total iscc-id counter increments caused by collisions",
		}, []string{"ledger"}),

		PollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "iscc_observer_poll_errors_total",
			Help: "Total transient poll failures by ledger and kind",
		}, []string{"ledger", "kind"}),

		ResolveLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iscc_observer_resolve_duration_seconds",
			Help:    "Duration of resolving one declaration against the store",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"ledger"}),

		Cursor: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iscc_observer_cursor",
			Help: "Next chain index requested from the ledger",
		}, []string{"ledger"}),
	}
}

// IncrementDeclaration records a resolved declaration.
func (m *Metrics) IncrementDeclaration(ledger, outcome string) {
	if m != nil {
		m.Declarations.WithLabelValues(ledger, outcome).Inc()
	}
}

// IncrementRejected records a declaration that failed validation.
func (m *Metrics) IncrementRejected(ledger string) {
	if m != nil {
		m.Rejected.WithLabelValues(ledger).Inc()
	}
}

// AddCollisions records counter increments for one declaration.
func (m *Metrics) AddCollisions(ledger string, n uint64) {
	if m != nil && n > 0 {
		m.Collisions.WithLabelValues(ledger).Add(float64(n))
	}
}

// IncrementPollError records a transient poll failure.
func (m *Metrics) IncrementPollError(ledger, kind string) {
	if m != nil {
		m.PollErrors.WithLabelValues(ledger, kind).Inc()
	}
}

// ObserveResolveLatency records the duration of one resolve call.
func (m *Metrics) ObserveResolveLatency(ledger string, d time.Duration) {
	if m != nil {
		m.ResolveLatency.WithLabelValues(ledger).Observe(d.Seconds())
	}
}

// SetCursor records the next chain index.
func (m *Metrics) SetCursor(ledger string, cursor uint64) {
	if m != nil {
		m.Cursor.WithLabelValues(ledger).Set(float64(cursor))
	}
}
