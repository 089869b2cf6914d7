package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GateMetrics holds the Gatekeeper's Prometheus registrations. The
// hand-rolled registry in metrics.go is separate and is not served by
// the Brain, whose /health returns a plain "ok"; the Gate is the
// service boundary an operator scrapes, so it gets a standard
// exposition format.
type GateMetrics struct {
	ProposalsTotal   *prometheus.CounterVec
	GateOutcomeTotal *prometheus.CounterVec
	OrderLatency     prometheus.Histogram
	HeartbeatAge     prometheus.Gauge
}

// NewGateMetrics registers the Gate's metric families against reg. Pass
// prometheus.NewRegistry() in production, or a fresh registry per test.
func NewGateMetrics(reg prometheus.Registerer) *GateMetrics {
	factory := promauto.With(reg)
	return &GateMetrics{
		ProposalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_proposals_total",
			Help: "Total proposals received by the gate, labelled by final status.",
		}, []string{"status"}),
		GateOutcomeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_evaluation_outcome_total",
			Help: "Constitution evaluation outcomes, labelled by the gate step name and verdict.",
		}, []string{"gate", "verdict"}),
		OrderLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_order_submit_seconds",
			Help:    "Latency of multi-leg order submission to the broker.",
			Buckets: prometheus.DefBuckets,
		}),
		HeartbeatAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gate_heartbeat_age_seconds",
			Help: "Seconds since the last heartbeat was received from the Brain.",
		}),
	}
}
