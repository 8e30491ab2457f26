package eventd

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File processing results
const (
	resultProcessed     = "processed"
	resultSkippedRead   = "skipped_read"
	resultSkippedDecode = "skipped_decode"
	resultAborted       = "aborted"
)

var (
	// jobFilesTotal counts job files by processing result
	jobFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ganeti_eventd_job_files_total",
			Help: "Job files handled, by result",
		},
		[]string{"result"},
	)

	// decodedTotal counts decoded job files by schema
	decodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ganeti_eventd_decoded_total",
			Help: "Job files decoded, by schema",
		},
		[]string{"schema"},
	)

	// eventsPublishedTotal counts published notifications by status
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ganeti_eventd_events_published_total",
			Help: "Notification events published, by operation status",
		},
		[]string{"status"},
	)

	// unknownStatusTotal counts operations with an unmapped status
	unknownStatusTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ganeti_eventd_unknown_status_total",
			Help: "Operations skipped because of an unknown status",
		},
	)

	// watchErrorsTotal counts errors reported by the watch backend
	watchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ganeti_eventd_watch_errors_total",
			Help: "Errors reported by the directory watch",
		},
	)

	// daemonState exposes the numeric lifecycle state
	daemonState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ganeti_eventd_state",
			Help: "Daemon state: 0 starting, 1 running, 2 stopping, 3 stopped",
		},
	)
)

func recordFile(result string) {
	jobFilesTotal.WithLabelValues(result).Inc()
}

func recordDecoded(schema string) {
	decodedTotal.WithLabelValues(schema).Inc()
}

func recordPublished(status string) {
	eventsPublishedTotal.WithLabelValues(status).Inc()
}

func recordUnknownStatus() {
	unknownStatusTotal.Inc()
}

func recordWatchError() {
	watchErrorsTotal.Inc()
}

func recordState(s State) {
	daemonState.Set(float64(s))
}
