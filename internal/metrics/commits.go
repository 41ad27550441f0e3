package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CommitMetrics holds metrics for index-commit deletion decisions.
type CommitMetrics struct {
	// DeletedCommits counts index commits physically deleted by the policy.
	DeletedCommits prometheus.Counter

	// DeleteFailures counts commit deletions that failed and will be
	// retried on the next commit event.
	DeleteFailures prometheus.Counter

	// AcquiredReferences tracks the number of distinct commits pinned by
	// external snapshot or backup references.
	AcquiredReferences prometheus.Gauge

	// SafeCommitGeneration tracks the commit generation of the retained
	// safe commit.
	SafeCommitGeneration prometheus.Gauge

	// SafeCommitMaxSeqNo tracks the max sequence number of the retained
	// safe commit (-1 for a legacy commit).
	SafeCommitMaxSeqNo prometheus.Gauge
}

// NewCommitMetrics creates and registers commit metrics.
// Uses promauto for automatic registration with the default registry.
func NewCommitMetrics() *CommitMetrics {
	return &CommitMetrics{
		DeletedCommits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lodestone",
				Subsystem: "commits",
				Name:      "deleted_total",
				Help:      "Total index commits physically deleted by the deletion policy.",
			},
		),
		DeleteFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "lodestone",
				Subsystem: "commits",
				Name:      "delete_failures_total",
				Help:      "Total commit deletions that failed (retried on the next commit event).",
			},
		),
		AcquiredReferences: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "commits",
				Name:      "acquired_references",
				Help:      "Number of distinct index commits pinned by external references.",
			},
		),
		SafeCommitGeneration: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "commits",
				Name:      "safe_commit_generation",
				Help:      "Commit generation of the currently retained safe commit.",
			},
		),
		SafeCommitMaxSeqNo: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "lodestone",
				Subsystem: "commits",
				Name:      "safe_commit_max_seq_no",
				Help:      "Max sequence number of the currently retained safe commit (-1 for legacy).",
			},
		),
	}
}

// NewCommitMetricsWithRegistry creates commit metrics registered with a
// custom registry. Useful for testing to avoid conflicts with the default
// registry.
func NewCommitMetricsWithRegistry(reg prometheus.Registerer) *CommitMetrics {
	deletedCommits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lodestone",
			Subsystem: "commits",
			Name:      "deleted_total",
			Help:      "Total index commits physically deleted by the deletion policy.",
		},
	)

	deleteFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lodestone",
			Subsystem: "commits",
			Name:      "delete_failures_total",
			Help:      "Total commit deletions that failed (retried on the next commit event).",
		},
	)

	acquiredReferences := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "commits",
			Name:      "acquired_references",
			Help:      "Number of distinct index commits pinned by external references.",
		},
	)

	safeCommitGeneration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "commits",
			Name:      "safe_commit_generation",
			Help:      "Commit generation of the currently retained safe commit.",
		},
	)

	safeCommitMaxSeqNo := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lodestone",
			Subsystem: "commits",
			Name:      "safe_commit_max_seq_no",
			Help:      "Max sequence number of the currently retained safe commit (-1 for legacy).",
		},
	)

	reg.MustRegister(deletedCommits)
	reg.MustRegister(deleteFailures)
	reg.MustRegister(acquiredReferences)
	reg.MustRegister(safeCommitGeneration)
	reg.MustRegister(safeCommitMaxSeqNo)

	return &CommitMetrics{
		DeletedCommits:       deletedCommits,
		DeleteFailures:       deleteFailures,
		AcquiredReferences:   acquiredReferences,
		SafeCommitGeneration: safeCommitGeneration,
		SafeCommitMaxSeqNo:   safeCommitMaxSeqNo,
	}
}

// RecordDeletedCommits adds to the deleted commits counter.
func (m *CommitMetrics) RecordDeletedCommits(count int) {
	m.DeletedCommits.Add(float64(count))
}

// RecordDeleteFailure increments the delete failure counter.
func (m *CommitMetrics) RecordDeleteFailure() {
	m.DeleteFailures.Inc()
}

// RecordAcquiredReferences updates the acquired references metric.
func (m *CommitMetrics) RecordAcquiredReferences(count int) {
	m.AcquiredReferences.Set(float64(count))
}

// RecordSafeCommit updates the safe commit gauges.
func (m *CommitMetrics) RecordSafeCommit(generation, maxSeqNo int64) {
	m.SafeCommitGeneration.Set(float64(generation))
	m.SafeCommitMaxSeqNo.Set(float64(maxSeqNo))
}
