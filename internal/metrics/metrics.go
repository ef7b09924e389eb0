// Package metrics provides Prometheus metrics for the sync core:
// one collector set per component, registered once at
// core.Bridge construction.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is a package-level registry holding the Go runtime and
// process collectors. InitMetrics registers the bmbridge collectors
// against whichever registry it is given, not this one.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Collectors holds the Prometheus instruments for every sync-core
// component.
type Collectors struct {
	// F: reverse queue
	QueueDepth       prometheus.Gauge
	QueueRetries     prometheus.Counter
	QueueQuarantines prometheus.Counter

	// G: ack reconciliation
	AckStatusTotal *prometheus.CounterVec // label: status

	// H: inbound apply
	ApplyOutcomeTotal *prometheus.CounterVec // label: status

	// I: WebSocket session
	SessionStatus       *prometheus.GaugeVec // label: status
	ReconnectAttempts   prometheus.Counter
	HeartbeatRTTSeconds prometheus.Histogram

	// D: dedupe ledger
	DedupeHits   prometheus.Counter
	DedupeMisses prometheus.Counter

	// J: capture/suppression
	SuppressionSkips prometheus.Counter
}

// InitMetrics registers and returns the full Collectors set against reg.
func InitMetrics(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "bmbridge_reverse_queue_depth",
			Help: "Current number of items in the reverse-sync queue.",
		}),
		QueueRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "bmbridge_reverse_queue_retries_total",
			Help: "Total reverse-sync items marked as a transport-failure retry.",
		}),
		QueueQuarantines: f.NewCounter(prometheus.CounterOpts{
			Name: "bmbridge_reverse_queue_quarantines_total",
			Help: "Total reverse-sync items dropped after exhausting retries.",
		}),
		AckStatusTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bmbridge_ack_status_total",
			Help: "Total ack reconciliations by status.",
		}, []string{"status"}),
		ApplyOutcomeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bmbridge_apply_outcome_total",
			Help: "Total inbound action applications by outcome status.",
		}, []string{"status"}),
		SessionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bmbridge_session_status",
			Help: "1 if the WebSocket session currently holds this status, 0 otherwise.",
		}, []string{"status"}),
		ReconnectAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "bmbridge_session_reconnect_attempts_total",
			Help: "Total WebSocket reconnect attempts.",
		}),
		HeartbeatRTTSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bmbridge_heartbeat_rtt_seconds",
			Help:    "Round-trip time of heartbeat ping/pong exchanges.",
			Buckets: prometheus.DefBuckets,
		}),
		DedupeHits: f.NewCounter(prometheus.CounterOpts{
			Name: "bmbridge_dedupe_hits_total",
			Help: "Total events rejected by the dedupe ledger as duplicates.",
		}),
		DedupeMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "bmbridge_dedupe_misses_total",
			Help: "Total events accepted by the dedupe ledger as novel.",
		}),
		SuppressionSkips: f.NewCounter(prometheus.CounterOpts{
			Name: "bmbridge_suppression_skips_total",
			Help: "Total local capture events skipped because the suppression engine was active.",
		}),
	}
}

// sessionStatuses is the closed set of values SetSessionStatus cycles
// through so exactly one gauge reads 1 at a time.
var sessionStatuses = []string{"disconnected", "connecting", "connected", "reconnecting"}

// SetSessionStatus records active as the only status currently set to 1.
func (c *Collectors) SetSessionStatus(active string) {
	for _, s := range sessionStatuses {
		v := 0.0
		if s == active {
			v = 1.0
		}
		c.SessionStatus.WithLabelValues(s).Set(v)
	}
}

// Handler returns an http.Handler serving reg in Prometheus text
// exposition format, for the CLI's optional /metrics surface.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
