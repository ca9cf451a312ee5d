package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	requestsTotal         *prometheus.CounterVec
	latencySeconds        *prometheus.HistogramVec
	errorsTotal           *prometheus.CounterVec
	representativeSwaps   *prometheus.CounterVec
	scorePatchesTotal     *prometheus.CounterVec
	pdfJobsTotal          *prometheus.CounterVec
	pdfJobDuration        prometheus.Histogram
	pdfPollErrorsTotal    prometheus.Counter
	gradingEventsTotal    *prometheus.CounterVec
	viewCacheLookupsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the results service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_requests_total",
			Help: "Total number of results API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "results_latency_seconds",
			Help:    "Latency distribution for results API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_errors_total",
			Help: "Total number of error responses returned by results endpoints.",
		}, []string{"method", "route", "status"})

		representativeSwaps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_representative_swaps_total",
			Help: "Representative attempt selections by outcome.",
		}, []string{"outcome"})

		scorePatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_score_patches_total",
			Help: "Manual score corrections by outcome.",
		}, []string{"outcome"})

		pdfJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_pdf_jobs_total",
			Help: "Wrong-note PDF jobs by terminal status.",
		}, []string{"status"})

		pdfJobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "results_pdf_job_duration_seconds",
			Help:    "Time spent rendering and uploading wrong-note PDFs.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		})

		pdfPollErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "results_pdf_poll_errors_total",
			Help: "Transient failures while watching PDF job status.",
		})

		gradingEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_grading_events_total",
			Help: "Grading pipeline events by type and outcome.",
		}, []string{"type", "outcome"})

		viewCacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_view_cache_lookups_total",
			Help: "Cached result view lookups by view and outcome.",
		}, []string{"view", "outcome"})

		prometheus.MustRegister(
			requestsTotal,
			latencySeconds,
			errorsTotal,
			representativeSwaps,
			scorePatchesTotal,
			pdfJobsTotal,
			pdfJobDuration,
			pdfPollErrorsTotal,
			gradingEventsTotal,
			viewCacheLookupsTotal,
		)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// RepresentativeSwaps counts representative attempt selections.
func RepresentativeSwaps() *prometheus.CounterVec {
	RegisterMetrics()
	return representativeSwaps
}

// ScorePatches counts manual score corrections.
func ScorePatches() *prometheus.CounterVec {
	RegisterMetrics()
	return scorePatchesTotal
}

// PDFJobs counts finished PDF jobs.
func PDFJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return pdfJobsTotal
}

// PDFJobDuration observes PDF job processing time.
func PDFJobDuration() prometheus.Histogram {
	RegisterMetrics()
	return pdfJobDuration
}

// PDFPollErrors counts transient job watch failures.
func PDFPollErrors() prometheus.Counter {
	RegisterMetrics()
	return pdfPollErrorsTotal
}

// GradingEvents counts ingested grading pipeline events.
func GradingEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingEventsTotal
}

// ViewCacheLookups counts cached view hits and misses.
func ViewCacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return viewCacheLookupsTotal
}
