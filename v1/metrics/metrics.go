package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RequestCounter tracks the number of lock requests submitted.
	RequestCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weblocks_requests_total",
		Help: "Total number of lock requests",
	})
	// GrantCounter tracks the number of granted locks.
	GrantCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weblocks_granted_total",
		Help: "Total number of granted locks",
	})
	// StealCounter tracks the number of locks evicted by steal requests.
	StealCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weblocks_stolen_total",
		Help: "Total number of locks evicted by steal requests",
	})
	// AbortCounter tracks requests rejected as aborted: through their abort
	// signal, or as holders preempted by a steal.
	AbortCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "weblocks_aborted_total",
		Help: "Total number of requests rejected as aborted by their signal or by a steal",
	})
	// HeldGauge reports the number of currently held locks.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weblocks_held",
		Help: "Current number of held locks",
	})
	// PendingGauge reports the number of queued requests.
	PendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "weblocks_pending",
		Help: "Current number of queued lock requests",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers the lock manager metrics on the provided
// registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestCounter,
		GrantCounter,
		StealCounter,
		AbortCounter,
		HeldGauge,
		PendingGauge,
	)
}
