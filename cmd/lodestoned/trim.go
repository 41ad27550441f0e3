package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/lodestone-io/lodestone/internal/config"
	"github.com/lodestone-io/lodestone/internal/gc"
	"github.com/lodestone-io/lodestone/internal/logging"
	"github.com/lodestone-io/lodestone/internal/metrics"
	"github.com/lodestone-io/lodestone/internal/translog"
)

// runTrim reclaims translog generations below the retention floor. By
// default it performs a single scan and exits; with --watch it keeps
// scanning at the configured interval and serves metrics.
//
// The shard is assumed to be offline or archived: without a live commit
// stream the recovery floor cannot advance on its own, so it is taken
// from --min-recovery-gen, defaulting to the newest generation present.
func runTrim(args []string) {
	fs := flag.NewFlagSet("trim", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dataDir := fs.String("data-dir", "", "Override shard data directory")
	watch := fs.Bool("watch", false, "Keep scanning at the configured interval instead of exiting")
	minRecoveryGen := fs.Int64("min-recovery-gen", -1, "Oldest generation recovery could need (default: the newest generation present)")

	fs.Usage = func() {
		fmt.Println(`Usage: lodestoned trim [options]

Delete translog generation files below the retention floor of an offline
or archived shard. The newest generation is never deleted.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	if *dataDir != "" {
		cfg.Shard.DataDir = *dataDir
	}

	logger := logging.Configure(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	logger = logger.With(map[string]any{"node": uuid.New().String()})

	scanner := translog.NewScanner(filepath.Join(cfg.Shard.DataDir, "translog"))
	policy := translog.NewRetentionPolicy(translog.RetentionPolicyConfig{
		RetentionSizeBytes: cfg.Translog.RetentionSizeBytes,
		RetentionAgeMs:     cfg.Translog.RetentionAgeMs,
		Logger:             logger,
	})

	floor := *minRecoveryGen
	if floor < 0 {
		maxGen, err := scanner.MaxGeneration()
		if err != nil {
			logger.Errorf("failed to scan translog directory", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		floor = maxGen
	}
	if err := policy.SetMinGenerationForRecovery(floor); err != nil {
		logger.Errorf("invalid recovery generation", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	if !*watch {
		worker := gc.NewTranslogTrimWorker(policy, scanner, gc.TranslogTrimWorkerConfig{Logger: logger})
		trimmed, err := worker.ScanOnce(context.Background())
		if err != nil {
			logger.Errorf("trim scan failed", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		logger.Infof("trim complete", map[string]any{"trimmed": trimmed})
		return
	}

	translogMetrics := metrics.NewTranslogMetrics()
	worker := gc.NewTranslogTrimWorker(policy, scanner, gc.TranslogTrimWorkerConfig{
		ScanIntervalMs: cfg.GC.ScanIntervalMs,
		Metrics:        translogMetrics,
		Logger:         logger,
	})

	metricsServer := metrics.NewServer(cfg.Observability.MetricsAddr)
	if err := metricsServer.Start(); err != nil {
		logger.Errorf("failed to start metrics server", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logger.Infof("metrics server listening", map[string]any{"addr": metricsServer.Addr()})

	worker.Start()
	logger.Infof("translog trim worker started", map[string]any{
		"dir":            scanner.Dir(),
		"scanIntervalMs": cfg.GC.ScanIntervalMs,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("received shutdown signal", map[string]any{"signal": sig.String()})

	worker.Stop()
	if err := metricsServer.Close(); err != nil {
		logger.Warnf("metrics server shutdown error", map[string]any{"error": err.Error()})
	}
	logger.Info("trim worker shutdown complete")
}

func loadConfig(path string) *config.Config {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
