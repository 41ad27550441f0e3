// Package gc: this file implements the translog trim worker that deletes
// sealed generation files below the retention floor.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lodestone-io/lodestone/internal/logging"
	"github.com/lodestone-io/lodestone/internal/metrics"
	"github.com/lodestone-io/lodestone/internal/translog"
)

// TranslogTrimWorkerConfig configures the translog trim worker.
type TranslogTrimWorkerConfig struct {
	// ScanIntervalMs is the interval between trim scans in milliseconds.
	// Default: 60000 (1 minute)
	ScanIntervalMs int64

	// Metrics records trim outcomes. Optional.
	Metrics *metrics.TranslogMetrics

	// Logger is used for trim decisions. Default: the global logger.
	Logger *logging.Logger
}

// TranslogTrimWorker periodically scans a shard's translog directory and
// deletes sealed generation files below the retention floor computed by
// the retention policy. The file currently being written is never removed.
type TranslogTrimWorker struct {
	policy  *translog.RetentionPolicy
	scanner *translog.Scanner
	metrics *metrics.TranslogMetrics
	logger  *logging.Logger
	config  TranslogTrimWorkerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewTranslogTrimWorker creates a new translog trim worker.
func NewTranslogTrimWorker(policy *translog.RetentionPolicy, scanner *translog.Scanner, config TranslogTrimWorkerConfig) *TranslogTrimWorker {
	if config.ScanIntervalMs <= 0 {
		config.ScanIntervalMs = 60000
	}
	if config.Logger == nil {
		config.Logger = logging.Global()
	}
	return &TranslogTrimWorker{
		policy:  policy,
		scanner: scanner,
		metrics: config.Metrics,
		logger:  config.Logger,
		config:  config,
	}
}

// Start begins the trim worker background loop.
func (w *TranslogTrimWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

// Stop stops the trim worker and waits for completion.
func (w *TranslogTrimWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// run is the main worker loop.
func (w *TranslogTrimWorker) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(time.Duration(w.config.ScanIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	// Run one scan immediately on start
	ctx := context.Background()
	if _, err := w.ScanOnce(ctx); err != nil {
		w.logger.Warnf("translog trim scan failed", map[string]any{"error": err.Error()})
	}

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.ScanOnce(ctx); err != nil {
				w.logger.Warnf("translog trim scan failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// ScanOnce performs a single trim scan synchronously and returns the number
// of files deleted. Deletion failures are collected per file; the scan
// continues past them, and the failed files are retried on the next scan.
func (w *TranslogTrimWorker) ScanOnce(ctx context.Context) (int, error) {
	files, err := w.scanner.List()
	if err != nil {
		return 0, fmt.Errorf("scan translog dir: %w", err)
	}
	if len(files) == 0 {
		return 0, nil
	}

	// Files are sorted by generation; the newest one is being written.
	writerGeneration := files[len(files)-1].Generation
	minGenRequired := w.policy.MinGenerationRequired(files, writerGeneration)

	trimmed := 0
	var errs []error
	var retainedFiles int
	var retainedBytes int64

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if f.Generation >= minGenRequired || f.Generation == writerGeneration {
			retainedFiles++
			retainedBytes += f.SizeBytes
			continue
		}
		if err := w.scanner.Remove(f.Generation); err != nil {
			w.logger.Warnf("failed to remove translog file", map[string]any{
				"generation": f.Generation,
				"error":      err.Error(),
			})
			if w.metrics != nil {
				w.metrics.RecordTrimFailure()
			}
			errs = append(errs, err)
			retainedFiles++
			retainedBytes += f.SizeBytes
			continue
		}
		trimmed++
	}

	if trimmed > 0 {
		w.logger.Debugf("trimmed translog generations", map[string]any{
			"trimmed":          trimmed,
			"minGenRequired":   minGenRequired,
			"writerGeneration": writerGeneration,
		})
	}

	if w.metrics != nil {
		w.metrics.RecordMinGenerationRequired(minGenRequired)
		w.metrics.RecordPendingReferences(w.policy.PendingReferenceCount())
		w.metrics.RecordRetainedFiles(retainedFiles)
		w.metrics.RecordRetainedBytes(retainedBytes)
		if trimmed > 0 {
			w.metrics.RecordTrimmedFiles(trimmed)
		}
	}

	return trimmed, errors.Join(errs...)
}
