// Package metrics defines the Prometheus collectors exported by medaudit.
//
// Collectors are package-level so instrumented packages can update them
// without plumbing; Register attaches them to a registry once at startup.
// Unregistered collectors still accept updates, which keeps tests simple.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ScoringRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medaudit_scoring_runs_total",
			Help: "Total number of scoring runs by outcome (count)",
		},
		[]string{"outcome"},
	)

	RuleEvaluationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medaudit_rule_evaluation_errors_total",
			Help: "Total number of rule evaluations that raised an error and were treated as passed (count)",
		},
		[]string{"rule_id"},
	)

	RuleCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medaudit_rule_cache_requests_total",
			Help: "Total number of rule cache lookups by result (count)",
		},
		[]string{"result"},
	)

	RuleSourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medaudit_rule_source_fetch_seconds",
			Help:    "Duration of rule source fetches in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	RuleVersionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medaudit_rule_versions_created_total",
			Help: "Total number of rule-set versions created (count)",
		},
	)

	RuleVersionCurrent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medaudit_rule_version_current",
			Help: "Current rule-set version number",
		},
	)
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
	CacheError = "error"
)

var registerOnce sync.Once

// Register attaches all collectors to reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			ScoringRunsTotal,
			RuleEvaluationErrorsTotal,
			RuleCacheRequestsTotal,
			RuleSourceFetchDuration,
			RuleVersionsCreatedTotal,
			RuleVersionCurrent,
		)
	})
}
