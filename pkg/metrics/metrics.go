// Package metrics exposes optional Prometheus instrumentation for the sync
// daemon. It is ambient observability, never required for sync correctness,
// and stays dark unless the daemon is started with --metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RaftApplyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spacenotes_raft_apply_duration_seconds",
			Help:    "Time taken for a reducer call to commit through Raft, by op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	ReducerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spacenotes_reducer_errors_total",
			Help: "Total number of reducer calls that returned an infrastructure error",
		},
		[]string{"op"},
	)

	NotesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacenotes_notes_total",
			Help: "Total number of notes currently in the row store",
		},
	)

	FoldersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacenotes_folders_total",
			Help: "Total number of folders currently in the row store",
		},
	)

	TrackerEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spacenotes_tracker_entries_total",
			Help: "Total number of content hashes held by the echo-suppression tracker",
		},
	)
)

func init() {
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(ReducerErrorsTotal)
	prometheus.MustRegister(NotesTotal)
	prometheus.MustRegister(FoldersTotal)
	prometheus.MustRegister(TrackerEntriesTotal)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation and reports it to a histogram on Observe.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time against histogram under label.
func (t *Timer) ObserveDuration(histogram *prometheus.HistogramVec, label string) {
	histogram.WithLabelValues(label).Observe(time.Since(t.start).Seconds())
}
