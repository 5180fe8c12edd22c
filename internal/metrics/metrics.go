// Package metrics provides Prometheus metrics for the reconciliation service.
//
// Every Record method is safe on a nil *Metrics so components can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics contains the service's Prometheus collectors.
type Metrics struct {
	catalogLookupsTotal *prometheus.CounterVec
	catalogReloadsTotal *prometheus.CounterVec

	inferenceRequestsTotal *prometheus.CounterVec
	inferenceDuration      *prometheus.HistogramVec

	artifactsTotal  *prometheus.CounterVec
	detectionsTotal *prometheus.CounterVec

	reconciliationsTotal *prometheus.CounterVec
	statusChangesTotal   *prometheus.CounterVec
	jobLockWait          prometheus.Histogram
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.catalogLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_lookups_total",
			Help: "Total number of label to tool lookups",
		},
		[]string{"result"}, // result: found, not_found
	)
	m.catalogReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_reloads_total",
			Help: "Total number of catalog index reloads from the database",
		},
		[]string{"status"},
	)

	m.inferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_requests_total",
			Help: "Total number of requests to the preprocess and inference services",
		},
		[]string{"endpoint", "status"},
	)
	m.inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "inference_request_duration_seconds",
			Help: "Time taken by preprocess and inference service calls",
			// 50ms to ~100s
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"endpoint"},
	)

	m.artifactsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_artifacts_total",
			Help: "Total number of raw artifacts sent through recognition",
		},
		[]string{"status"},
	)
	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_detections_total",
			Help: "Total number of detections recorded",
		},
		[]string{"resolved"}, // resolved: known, unknown
	)

	m.reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"outcome"}, // outcome: matched, mismatched, error
	)
	m.statusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_status_changes_total",
			Help: "Total number of job status changes",
		},
		[]string{"status"},
	)
	m.jobLockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "job_lock_wait_seconds",
			Help: "Time spent waiting for the per-job lock",
			// 100us to ~3s
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
	)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.catalogLookupsTotal,
		m.catalogReloadsTotal,
		m.inferenceRequestsTotal,
		m.inferenceDuration,
		m.artifactsTotal,
		m.detectionsTotal,
		m.reconciliationsTotal,
		m.statusChangesTotal,
		m.jobLockWait,
	}
}

// Describe implements the prometheus.Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

func statusLabel(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

func (m *Metrics) RecordCatalogLookup(found bool) {
	if m == nil {
		return
	}
	result := "found"
	if !found {
		result = "not_found"
	}
	m.catalogLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCatalogReload(err error) {
	if m == nil {
		return
	}
	m.catalogReloadsTotal.WithLabelValues(statusLabel(err)).Inc()
}

func (m *Metrics) RecordInferenceRequest(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.inferenceRequestsTotal.WithLabelValues(endpoint, statusLabel(err)).Inc()
	m.inferenceDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) RecordArtifact(err error) {
	if m == nil {
		return
	}
	m.artifactsTotal.WithLabelValues(statusLabel(err)).Inc()
}

func (m *Metrics) RecordDetections(known, unknown int) {
	if m == nil {
		return
	}
	m.detectionsTotal.WithLabelValues("known").Add(float64(known))
	m.detectionsTotal.WithLabelValues("unknown").Add(float64(unknown))
}

func (m *Metrics) RecordReconciliation(matched bool, err error) {
	if m == nil {
		return
	}
	outcome := "mismatched"
	switch {
	case err != nil:
		outcome = "error"
	case matched:
		outcome = "matched"
	}
	m.reconciliationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChangesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.jobLockWait.Observe(d.Seconds())
}
