/*
Package metrics provides Prometheus metrics collection and exposition for the
node agent.

The metrics package defines and registers all agent metrics using the
Prometheus client library, providing observability into the agent's workload
lifecycle, its start/delete queues, runtime facade call latency, and its
connection to the server. Metrics are exposed via an HTTP endpoint for
scraping by a Prometheus server.

# Metric Categories

Workload: WorkloadsTotal (gauge by state), WorkloadTransitionsTotal (counter
by runtime and resulting state), WorkloadRestartsTotal (counter by workload).

Queue: QueueDepth (gauge by queue name, "start" or "delete") — the number of
workloads currently waiting on an unfulfilled dependency.

Runtime facade: RuntimeOperationDuration (histogram by runtime and
operation), RuntimeOperationFailuresTotal (counter by runtime and operation).

Agent manager: ReconciliationDuration (histogram), ReconciliationCyclesTotal
(counter) — one cycle is one applied desired-state update from the server.

Transport: HeartbeatsSentTotal, ServerConnectionState (gauge, 1 connected / 0
disconnected), StateEventsSentTotal.

# Usage

Registering metrics happens automatically at package init via
prometheus.MustRegister; callers only need to record observations:

	timer := metrics.NewTimer()
	_, err := facade.CreateWorkload(ctx, spec, events)
	timer.ObserveDurationVec(metrics.RuntimeOperationDuration, "containerd", "create")
	if err != nil {
		metrics.RuntimeOperationFailuresTotal.WithLabelValues("containerd", "create").Inc()
	}

Exposing the /metrics endpoint:

	mux.Handle("/metrics", metrics.Handler())

# Collector

Collector periodically snapshots the Runtime Manager's live workload counts
and queue depths into the gauges above, via the ManagerSnapshot interface
pkg/manager.Manager implements. This avoids every call site updating gauges
directly for state that is cheaper to poll on an interval.

# Health

This package also exposes a small health/readiness/liveness subsystem
(health.go) used by cmd/agent for its /health, /ready, and /live endpoints,
independent of the Prometheus metrics above.
*/
package metrics
