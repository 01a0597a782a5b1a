// Package metrics exposes the control plane's Prometheus metrics:
// per-sub-agent health state and reconciliation counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agent_control"

var (
	subAgentLabels = []string{"agent_id"}

	subAgentHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sub_agent",
			Name:      "healthy",
			Help:      "1 if the sub-agent's most recent health check reported healthy, 0 otherwise.",
		},
		subAgentLabels,
	)

	subAgentHealthObservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sub_agent",
			Name:      "health_observations_total",
			Help:      "Total number of health probe results observed for this sub-agent.",
		},
		subAgentLabels,
	)

	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "total",
			Help:      "Total number of target-set reconciliation actions taken by the control-plane loop.",
		},
		[]string{"action"},
	)

	runningSupervisors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "running",
			Help:      "Number of sub-agent supervisors currently running.",
		},
	)
)

// ObserveHealth records a health probe result for agentID.
func ObserveHealth(agentID string, healthy bool) {
	labels := prometheus.Labels{"agent_id": agentID}
	subAgentHealthObservations.With(labels).Inc()
	if healthy {
		subAgentHealthy.With(labels).Set(1)
	} else {
		subAgentHealthy.With(labels).Set(0)
	}
}

// ObserveReconcile records a create/stop/apply reconciliation action.
func ObserveReconcile(action string) {
	reconcileTotal.With(prometheus.Labels{"action": action}).Inc()
}

// SetRunningSupervisors reports the current supervisor count.
func SetRunningSupervisors(n int) {
	runningSupervisors.Set(float64(n))
}
