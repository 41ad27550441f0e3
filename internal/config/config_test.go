package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Shard.DataDir == "" {
		t.Error("expected a default data dir")
	}
	if cfg.Translog.RetentionSizeBytes != 512*1024*1024 {
		t.Errorf("unexpected default retention size: %d", cfg.Translog.RetentionSizeBytes)
	}
	if cfg.Translog.RetentionAgeMs != 12*time.Hour.Milliseconds() {
		t.Errorf("unexpected default retention age: %d", cfg.Translog.RetentionAgeMs)
	}
	if cfg.GC.ScanIntervalMs != 60000 {
		t.Errorf("unexpected default scan interval: %d", cfg.GC.ScanIntervalMs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
shard:
  dataDir: /data/shards/7
translog:
  retentionSizeBytes: 1048576
  retentionAgeMs: -1
gc:
  scanIntervalMs: 5000
observability:
  logLevel: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Shard.DataDir != "/data/shards/7" {
		t.Errorf("unexpected data dir: %s", cfg.Shard.DataDir)
	}
	if cfg.Translog.RetentionSizeBytes != 1048576 {
		t.Errorf("unexpected retention size: %d", cfg.Translog.RetentionSizeBytes)
	}
	if cfg.Translog.RetentionAgeMs != -1 {
		t.Errorf("unexpected retention age: %d", cfg.Translog.RetentionAgeMs)
	}
	if cfg.GC.ScanIntervalMs != 5000 {
		t.Errorf("unexpected scan interval: %d", cfg.GC.ScanIntervalMs)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("unexpected log level: %s", cfg.Observability.LogLevel)
	}
	// Values absent from the file keep their defaults.
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("unexpected metrics addr: %s", cfg.Observability.MetricsAddr)
	}
}

func TestLoadFromPath_MissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LODESTONE_DATA_DIR", "/env/data")
	t.Setenv("LODESTONE_TRANSLOG_RETENTION_SIZE", "-1")
	t.Setenv("LODESTONE_GC_SCAN_INTERVAL_MS", "120000")
	t.Setenv("LODESTONE_LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Shard.DataDir != "/env/data" {
		t.Errorf("unexpected data dir: %s", cfg.Shard.DataDir)
	}
	if cfg.Translog.RetentionSizeBytes != -1 {
		t.Errorf("unexpected retention size: %d", cfg.Translog.RetentionSizeBytes)
	}
	if cfg.GC.ScanIntervalMs != 120000 {
		t.Errorf("unexpected scan interval: %d", cfg.GC.ScanIntervalMs)
	}
	if cfg.Observability.LogFormat != "text" {
		t.Errorf("unexpected log format: %s", cfg.Observability.LogFormat)
	}
}

func TestEnvOverrides_TakePrecedenceOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("shard:\n  dataDir: /from/file\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LODESTONE_DATA_DIR", "/from/env")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Shard.DataDir != "/from/env" {
		t.Errorf("env override must win, got %s", cfg.Shard.DataDir)
	}
}

func TestEnvOverrides_MalformedInteger(t *testing.T) {
	t.Setenv("LODESTONE_GC_SCAN_INTERVAL_MS", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a malformed integer override")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Shard.DataDir = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an empty data dir")
	}

	cfg = Default()
	cfg.GC.ScanIntervalMs = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a zero scan interval")
	}

	cfg = Default()
	cfg.Observability.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unknown log format")
	}
}
