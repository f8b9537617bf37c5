// Package metrics exposes Prometheus counters for eBon parsing and ingest.
// Recording helpers are no-ops until Init is called.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "ebon_"

// Ingest results
const (
	ResultCreated       = "created"
	ResultExisting      = "existing"
	ResultRejected      = "rejected"
	ResultExtractFailed = "extract_failed"
	ResultFailed        = "failed"
)

// ParseResultOK labels a parse that reconciled with its total
const ParseResultOK = "ok"

var (
	registerOnce sync.Once

	parseTotal    *prometheus.CounterVec
	parseDuration prometheus.Histogram
	ingestTotal   *prometheus.CounterVec
	importFiles   *prometheus.CounterVec
)

// Init registers the metrics with the default registry
func Init() {
	registerOnce.Do(func() {
		parseTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "parse_total",
				Help: "Total eBon parses by result code",
			},
			[]string{"result"},
		)
		parseDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "parse_duration_seconds",
				Help:    "eBon parse duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
		)
		ingestTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_total",
				Help: "Total eBon ingests by result",
			},
			[]string{"result"},
		)
		importFiles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "import_files_total",
				Help: "Files seen by directory import and watch by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(parseTotal, parseDuration, ingestTotal, importFiles)
	})
}

// ObserveParse records one parse; an empty code means success
func ObserveParse(code string, duration time.Duration) {
	if code == "" {
		code = ParseResultOK
	}
	if parseTotal != nil {
		parseTotal.WithLabelValues(code).Inc()
	}
	if parseDuration != nil {
		parseDuration.Observe(duration.Seconds())
	}
}

// ObserveIngest records the result of one ingest
func ObserveIngest(result string) {
	if result == "" {
		result = "unknown"
	}
	if ingestTotal != nil {
		ingestTotal.WithLabelValues(result).Inc()
	}
}

// ObserveImportFile records one file handled by directory import
func ObserveImportFile(result string) {
	if result == "" {
		result = "unknown"
	}
	if importFiles != nil {
		importFiles.WithLabelValues(result).Inc()
	}
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
