// Package metrics holds the service's prometheus collectors. Collectors
// register on the default registry at init and are served by the REST
// layer's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MintsTotal counts locally committed mints by generation mode.
	MintsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evomint_mints_total",
		Help: "Items minted locally by generation mode",
	}, []string{"mode"})

	// EvolutionsTotal counts successful evolutions by trigger.
	EvolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evomint_evolutions_total",
		Help: "Successful evolutions by trigger",
	}, []string{"trigger"})

	// LedgerOpsTotal counts remote ledger legs by operation and outcome.
	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evomint_ledger_ops_total",
		Help: "Remote ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// SweepRunsTotal counts sweep executions by kind and outcome.
	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evomint_sweep_runs_total",
		Help: "Sweep executions by kind and outcome",
	}, []string{"kind", "outcome"})

	// SweepItemsTotal counts items a retry sweep touched by result.
	SweepItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evomint_sweep_items_total",
		Help: "Items processed by retry sweeps by result",
	}, []string{"result"})

	// WaitlistJoinsTotal counts accepted waitlist joins.
	WaitlistJoinsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evomint_waitlist_joins_total",
		Help: "Accepted waitlist joins",
	})

	// EvolutionDuration tracks end-to-end evolution latency.
	EvolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evomint_evolution_duration_seconds",
		Help:    "End-to-end evolution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
