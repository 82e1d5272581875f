// Package metrics exposes Prometheus collectors for the import pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FilesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txapp_import_files_analyzed_total",
		Help: "Number of uploaded files analyzed for structure.",
	})

	RowsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txapp_import_rows_imported_total",
		Help: "Number of transaction rows successfully imported.",
	})

	RowsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txapp_import_rows_failed_total",
		Help: "Number of transaction rows rejected with hard errors.",
	})

	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txapp_import_duplicates_skipped_total",
		Help: "Number of rows skipped as duplicates of stored transactions.",
	})

	BatchesAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txapp_import_batches_aborted_total",
		Help: "Number of batches voided by the all-or-nothing commit policy.",
	})

	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "txapp_import_duration_seconds",
		Help:    "Wall time of one import batch.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
