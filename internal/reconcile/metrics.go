package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// actionsTotal counts remote reconciliation actions by action and result
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vps_agent_reconcile_actions_total",
		Help: "Reconciliation actions by action and result",
	}, []string{"action", "result"})

	// passesTotal counts passes by whether they ran or were skipped
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vps_agent_reconcile_passes_total",
		Help: "Reconciliation passes by outcome",
	}, []string{"outcome"})

	// passDuration tracks how long a full pass takes, remote calls included
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vps_agent_reconcile_pass_duration_seconds",
		Help:    "Reconciliation pass duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
	})

	// artifactsSeen tracks the size of the announced artifact set
	artifactsSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vps_agent_artifacts_announced",
		Help: "Distinct artifact hashes announced this session",
	})
)

func observeOutcome(o Outcome) {
	actionsTotal.WithLabelValues(string(o.Action), string(o.Result)).Inc()
}
