package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workload lifecycle metrics
	WorkloadsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_workloads_total",
			Help: "Total number of workloads this agent manages, by execution state",
		},
		[]string{"state"},
	)

	WorkloadTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_workload_transitions_total",
			Help: "Total number of workload execution state transitions, by runtime and resulting state",
		},
		[]string{"runtime", "state"},
	)

	WorkloadRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_workload_restarts_total",
			Help: "Total number of workload restarts triggered by restart policy",
		},
		[]string{"workload"},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_queue_depth",
			Help: "Number of workloads currently waiting in the start or delete queue",
		},
		[]string{"queue"},
	)

	// Runtime facade metrics
	RuntimeOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_runtime_operation_duration_seconds",
			Help:    "Time taken for a runtime facade operation in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"runtime", "operation"},
	)

	RuntimeOperationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_runtime_operation_failures_total",
			Help: "Total number of failed runtime facade operations",
		},
		[]string{"runtime", "operation"},
	)

	// Agent manager metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_reconciliation_duration_seconds",
			Help:    "Time taken to apply one desired-state update in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_reconciliation_cycles_total",
			Help: "Total number of desired-state updates applied",
		},
	)

	// Transport metrics
	HeartbeatsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_heartbeats_sent_total",
			Help: "Total number of heartbeats sent to the server",
		},
	)

	ServerConnectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_server_connection_state",
			Help: "Whether the agent is currently connected to the server (1 = connected, 0 = disconnected)",
		},
	)

	StateEventsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_state_events_sent_total",
			Help: "Total number of workload state events reported to the server",
		},
	)
)

func init() {
	prometheus.MustRegister(WorkloadsTotal)
	prometheus.MustRegister(WorkloadTransitionsTotal)
	prometheus.MustRegister(WorkloadRestartsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(RuntimeOperationDuration)
	prometheus.MustRegister(RuntimeOperationFailuresTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(HeartbeatsSentTotal)
	prometheus.MustRegister(ServerConnectionState)
	prometheus.MustRegister(StateEventsSentTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
