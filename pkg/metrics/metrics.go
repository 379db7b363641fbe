// Package metrics holds the Prometheus collectors for the ride core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridematch"

type Metrics struct {
	RidesCreated      *prometheus.CounterVec
	RideTransitions   *prometheus.CounterVec
	AcceptConflicts   prometheus.Counter
	RidesExpired      prometheus.Counter
	QuotesTotal       *prometheus.CounterVec
	QuoteMultiplier   prometheus.Histogram
	SignalDegraded    *prometheus.CounterVec
	DispatchPublished *prometheus.CounterVec
	DispatchFailures  *prometheus.CounterVec
	WebSocketClients  prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg. Passing a fresh registry keeps
// tests isolated from each other.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RidesCreated: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Rides created by vehicle type"},
			[]string{"vehicle_type"},
		),
		RideTransitions: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride status transitions"},
			[]string{"status"},
		),
		AcceptConflicts: f.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "ride_accept_conflicts_total", Help: "Accept attempts that lost the race"},
		),
		RidesExpired: f.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "rides_expired_total", Help: "Pending rides cancelled by the expiry sweep"},
		),
		QuotesTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "price_quotes_total", Help: "Price quotes by policy and rate source"},
			[]string{"policy", "rate_source"},
		),
		QuoteMultiplier: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "price_quote_signal_multiplier",
				Help:      "Combined signal multiplier before policy is applied",
				Buckets:   []float64{1, 1.1, 1.25, 1.5, 2, 2.5, 3, 4},
			},
		),
		SignalDegraded: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "signal_degraded_total", Help: "Signal readings replaced by the neutral value"},
			[]string{"signal"},
		),
		DispatchPublished: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_published_total", Help: "Dispatch events published"},
			[]string{"type"},
		),
		DispatchFailures: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "dispatch_failures_total", Help: "Dispatch events that could not be published"},
			[]string{"type"},
		),
		WebSocketClients: f.NewGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "websocket_clients", Help: "Connected websocket clients"},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency distribution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

// NewNop returns collectors registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
