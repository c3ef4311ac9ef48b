package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "catalog"

	sourceRefreshesTotalMetricName         = "source_refreshes_total"
	sourceRefreshDurationSecondsMetricName = "source_refresh_duration_seconds"
	decodeErrorsTotalMetricName            = "decode_errors_total"
	storedAppsMetricName                   = "stored_apps"
)

// Refresh outcomes.
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

func init() {
	prometheus.MustRegister(sourceRefreshesTotal)
	prometheus.MustRegister(sourceRefreshDurationSeconds)
	prometheus.MustRegister(decodeErrorsTotal)
	prometheus.MustRegister(storedApps)
}

var (
	// sourceRefreshesTotal counts fetch+decode+store runs per source and outcome.
	sourceRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      sourceRefreshesTotalMetricName,
			Help:      "Total source refreshes, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	sourceRefreshDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      sourceRefreshDurationSecondsMetricName,
			Help:      "Histogram of source refresh time in seconds, including the download.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	// decodeErrorsTotal counts rejected catalog documents by the failing key.
	decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      decodeErrorsTotalMetricName,
			Help:      "Total catalog documents rejected while decoding, labeled by the failing key.",
		},
		[]string{"key"},
	)

	storedApps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      storedAppsMetricName,
			Help:      "Number of apps currently stored per source.",
		},
		[]string{"source"},
	)
)

func RecordRefresh(sourceID, outcome string, started time.Time) {
	sourceRefreshesTotal.WithLabelValues(sourceID, outcome).Inc()
	sourceRefreshDurationSeconds.WithLabelValues(sourceID).Observe(time.Since(started).Seconds())
}

func RecordDecodeError(key string) {
	if key == "" {
		key = "document"
	}
	decodeErrorsTotal.WithLabelValues(key).Inc()
}

func SetStoredApps(sourceID string, count int) {
	storedApps.WithLabelValues(sourceID).Set(float64(count))
}

func ForgetSource(sourceID string) {
	storedApps.DeleteLabelValues(sourceID)
}
