package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TranslogMetrics holds metrics for translog retention and trimming.
type TranslogMetrics struct {
	// PendingReferences tracks the number of distinct translog generations
	// pinned by outstanding reader or snapshot references.
	PendingReferences prometheus.Gauge

	// MinGenerationRequired tracks the retention floor: the oldest
	// generation that must currently be preserved.
	MinGenerationRequired prometheus.Gauge

	// RetainedFiles tracks the number of translog generation files on disk.
	RetainedFiles prometheus.Gauge

	// RetainedBytes tracks the cumulative size of translog files on disk.
	RetainedBytes prometheus.Gauge

	// TrimmedFiles counts translog generation files deleted by the trim worker.
	TrimmedFiles prometheus.Counter

	// TrimFailures counts translog file deletions that failed and will be
	// retried on a later scan.
	TrimFailures prometheus.Counter
}

// NewTranslogMetrics creates and registers translog metrics.
// Uses promauto for automatic registration with the default registry.
func NewTranslogMetrics() *TranslogMetrics {
	return &TranslogMetrics{
		PendingReferences: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "translog",
				Name:      "pending_references",
				Help:      "Number of distinct translog generations with outstanding references.",
			},
		),
		MinGenerationRequired: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "translog",
				Name:      "min_generation_required",
				Help:      "Oldest translog generation that must be preserved (retention floor).",
			},
		),
		RetainedFiles: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "translog",
				Name:      "retained_files",
				Help:      "Number of translog generation files currently on disk.",
			},
		),
		RetainedBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "translog",
				Name:      "retained_bytes",
				Help:      "Cumulative size in bytes of translog generation files on disk.",
			},
		),
		TrimmedFiles: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lodestone",
				Subsystem: "translog",
				Name:      "trimmed_files_total",
				Help:      "Total translog generation files deleted by the trim worker.",
			},
		),
		TrimFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lodestone",
				Subsystem: "translog",
				Name:      "trim_failures_total",
				Help:      "Total translog file deletions that failed (retried on later scans).",
			},
		),
	}
}

// NewTranslogMetricsWithRegistry creates translog metrics registered with a
// custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewTranslogMetricsWithRegistry(reg prometheus.Registerer) *TranslogMetrics {
	pendingReferences := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "translog",
			Name:      "pending_references",
			Help:      "Number of distinct translog generations with outstanding references.",
		},
	)

	minGenerationRequired := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "translog",
			Name:      "min_generation_required",
			Help:      "Oldest translog generation that must be preserved (retention floor).",
		},
	)

	retainedFiles := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "translog",
			Name:      "retained_files",
			Help:      "Number of translog generation files currently on disk.",
		},
	)

	retainedBytes := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "translog",
			Name:      "retained_bytes",
			Help:      "Cumulative size in bytes of translog generation files on disk.",
		},
	)

	trimmedFiles := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lodestone",
			Subsystem: "translog",
			Name:      "trimmed_files_total",
			Help:      "Total translog generation files deleted by the trim worker.",
		},
	)

	trimFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lodestone",
			Subsystem: "translog",
			Name:      "trim_failures_total",
			Help:      "Total translog file deletions that failed (retried on later scans).",
		},
	)

	reg.MustRegister(pendingReferences)
	reg.MustRegister(minGenerationRequired)
	reg.MustRegister(retainedFiles)
	reg.MustRegister(retainedBytes)
	reg.MustRegister(trimmedFiles)
	reg.MustRegister(trimFailures)

	return &TranslogMetrics{
		PendingReferences:     pendingReferences,
		MinGenerationRequired: minGenerationRequired,
		RetainedFiles:         retainedFiles,
		RetainedBytes:         retainedBytes,
		TrimmedFiles:          trimmedFiles,
		TrimFailures:          trimFailures,
	}
}

// RecordPendingReferences updates the pending references metric.
func (m *TranslogMetrics) RecordPendingReferences(count int) {
	m.PendingReferences.Set(float64(count))
}

// RecordMinGenerationRequired updates the retention floor metric.
func (m *TranslogMetrics) RecordMinGenerationRequired(generation int64) {
	m.MinGenerationRequired.Set(float64(generation))
}

// RecordRetainedFiles updates the retained files metric.
func (m *TranslogMetrics) RecordRetainedFiles(count int) {
	m.RetainedFiles.Set(float64(count))
}

// RecordRetainedBytes updates the retained bytes metric.
func (m *TranslogMetrics) RecordRetainedBytes(bytes int64) {
	m.RetainedBytes.Set(float64(bytes))
}

// RecordTrimmedFiles adds to the trimmed files counter.
func (m *TranslogMetrics) RecordTrimmedFiles(count int) {
	m.TrimmedFiles.Add(float64(count))
}

// RecordTrimFailure increments the trim failure counter.
func (m *TranslogMetrics) RecordTrimFailure() {
	m.TrimFailures.Inc()
}
