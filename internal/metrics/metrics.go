// Package metrics provides Prometheus metrics for feed reconciliation.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

var (
	// FeedsCreated counts feeds registered for the first time.
	FeedsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "feedhub",
			Name:      "feeds_created_total",
			Help:      "Total number of feeds registered",
		},
	)

	// Reconciliations counts follow and unfollow outcomes.
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedhub",
			Name:      "reconciliations_total",
			Help:      "Total number of subscription reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	// ImportEntries counts OPML entries by whether they were imported or skipped.
	ImportEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedhub",
			Name:      "import_entries_total",
			Help:      "Total number of OPML entries processed by result",
		},
		[]string{"result"},
	)

	// UnitDuration measures how long units of work take, retries included.
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "feedhub",
			Name:      "unit_of_work_duration_seconds",
			Help:      "Duration of units of work in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// UnitRetries counts units of work replayed because the store was busy.
	UnitRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "feedhub",
			Name:      "unit_of_work_retries_total",
			Help:      "Total number of units of work retried after a busy store",
		},
		[]string{"operation"},
	)
)

// RecordImport records the counts of a committed import.
func RecordImport(imported, skipped int) {
	ImportEntries.WithLabelValues("imported").Add(float64(imported))
	ImportEntries.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordUnit records a finished unit of work.
//
// Units that failed on the store are "error"; ones turned away for the caller's input or
// the state of their subscriptions are "rejected".
func RecordUnit(operation string, err error, seconds float64) {
	UnitDuration.WithLabelValues(operation, unitStatus(err)).Observe(seconds)
}

func unitStatus(err error) string {
	var serr *feedhub.StoreError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &serr):
		return "error"
	default:
		return "rejected"
	}
}
