// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for the durability core:
//   - Translog retention: pending references, the retention floor, and
//     retained file count/bytes, plus trim counters
//   - Commit deletion: deleted commits, delete failures, acquired commit
//     references, and the retained safe commit's generation and max seq no
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	// Create and register metrics
//	translogMetrics := metrics.NewTranslogMetrics()
//	commitMetrics := metrics.NewCommitMetrics()
//
//	// Wire into the policies and the trim worker
//	policy := commits.NewDeletionPolicy(translogPolicy, checkpoint,
//	    commits.DeletionPolicyConfig{Metrics: commitMetrics})
//	worker := gc.NewTranslogTrimWorker(translogPolicy, scanner,
//	    gc.TranslogTrimWorkerConfig{Metrics: translogMetrics})
//
//	// Start metrics server
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics
