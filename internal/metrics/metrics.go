package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	CacheLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cache_loads_total",
			Help: "Collection fetches issued by the list cache",
		},
		[]string{"outcome"},
	)

	CacheRestores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_cache_restores_total",
			Help: "Attempts to restore the persisted collection snapshot",
		},
		[]string{"outcome"},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_mutations_total",
			Help: "Optimistic mutations by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	Rollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_rollbacks_total",
			Help: "Optimistic changes reverted after a backend failure",
		},
		[]string{"action"},
	)

	MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "portal_mutation_duration_seconds",
			Help: "Backend round trip of optimistic mutations",
		},
		[]string{"action"},
	)

	CachedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "portal_cached_records",
			Help: "Records currently held by the list cache",
		},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_submissions_total",
			Help: "Public form submissions by outcome",
		},
		[]string{"outcome"},
	)
)

func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
