// Package metrics exposes Prometheus metrics for blob processing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/straye-as/blob-processor/internal/domain"
)

// Stage names used for StageDurationSecs
const (
	StageDownload  = "download"
	StageTransform = "transform"
	StageUpload    = "upload"
)

// Metrics holds all Prometheus metrics for the processor
type Metrics struct {
	// Event tracking
	EventsReceivedTotal prometheus.Counter
	OutcomesTotal       *prometheus.CounterVec

	// Storage and transform
	StageDurationSecs    *prometheus.HistogramVec
	BytesDownloadedTotal prometheus.Counter
	BytesUploadedTotal   prometheus.Counter

	// Sweep job
	SweepRunsTotal          *prometheus.CounterVec
	LastSweepTimestampSecs  prometheus.Gauge
	SweepBlobsEnqueuedTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance on its own registry, including Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		EventsReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blob_processor_events_received_total",
			Help: "Total number of blob notifications received",
		}),
		OutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blob_processor_outcomes_total",
			Help: "Total number of handled notifications by status and reason",
		}, []string{"status", "reason"}),

		StageDurationSecs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blob_processor_stage_duration_seconds",
			Help:    "Duration of download, transform and upload stages in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		BytesDownloadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blob_processor_downloaded_bytes_total",
			Help: "Total number of bytes downloaded from input blobs",
		}),
		BytesUploadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blob_processor_uploaded_bytes_total",
			Help: "Total number of bytes uploaded to output blobs",
		}),

		SweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blob_processor_sweep_runs_total",
			Help: "Total number of sweep runs by result",
		}, []string{"result"}),
		LastSweepTimestampSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blob_processor_last_sweep_timestamp_seconds",
			Help: "Unix timestamp of the last completed sweep",
		}),
		SweepBlobsEnqueuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blob_processor_sweep_blobs_total",
			Help: "Total number of unprocessed blobs picked up by the sweep",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.EventsReceivedTotal,
		m.OutcomesTotal,
		m.StageDurationSecs,
		m.BytesDownloadedTotal,
		m.BytesUploadedTotal,
		m.SweepRunsTotal,
		m.LastSweepTimestampSecs,
		m.SweepBlobsEnqueuedTotal,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EventReceived counts an inbound notification
func (m *Metrics) EventReceived() {
	m.EventsReceivedTotal.Inc()
}

// ObserveOutcome counts a finished notification
func (m *Metrics) ObserveOutcome(o domain.Outcome) {
	m.OutcomesTotal.WithLabelValues(string(o.Status), o.Reason).Inc()
}

// ObserveStage records the duration of one processing stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDurationSecs.WithLabelValues(stage).Observe(d.Seconds())
}

// AddDownloaded counts bytes read from input blobs
func (m *Metrics) AddDownloaded(n int) {
	m.BytesDownloadedTotal.Add(float64(n))
}

// AddUploaded counts bytes written to output blobs
func (m *Metrics) AddUploaded(n int) {
	m.BytesUploadedTotal.Add(float64(n))
}

// ObserveSweep records a finished sweep run
func (m *Metrics) ObserveSweep(picked int, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.SweepRunsTotal.WithLabelValues(result).Inc()
	m.SweepBlobsEnqueuedTotal.Add(float64(picked))
	m.LastSweepTimestampSecs.SetToCurrentTime()
}
