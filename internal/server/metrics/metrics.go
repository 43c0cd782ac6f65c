// Package metrics holds Prometheus instruments used across the server. All
// collectors are registered with the global registry, so importing this
// package is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChangesRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_changes_requests_total",
			Help: "Cumulative number of change feed requests served.",
		})

	ChangesRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_changes_records_total",
			Help: "Cumulative number of records returned by the change feed.",
		})

	PushAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_push_applied_total",
			Help: "Cumulative number of push mutations applied.",
		})

	PushConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_push_conflicts_total",
			Help: "Cumulative number of push mutations rejected as conflicts.",
		})
)

func init() {
	prometheus.MustRegister(
		ChangesRequestsTotal,
		ChangesRecordsTotal,
		PushAppliedTotal,
		PushConflictsTotal,
	)
}
