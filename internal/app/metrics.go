package app

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_transitions_total",
			Help: "Streak state transitions applied, by transition and outcome",
		},
		[]string{"transition", "outcome"},
	)
	storeRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_store_conflict_retries_total",
			Help: "Transactional updates retried after a concurrent update conflict",
		},
	)
	discardedEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_discarded_events_total",
			Help: "Activity events dropped during recalculation because they were invalid",
		},
	)
	broadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streak_view_broadcasts_total",
			Help: "Streak views published to subscribers",
		},
	)
)

// RegisterMetrics registers the engine collectors on reg. Call it once from main.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(transitionsTotal, storeRetriesTotal, discardedEventsTotal, broadcastsTotal)
}
