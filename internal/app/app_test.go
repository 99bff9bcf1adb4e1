package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"newsgate/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestNewBuildsServiceGraph(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: error
storage:
  driver: memory
dedup:
  seen_ttl_days: 3
  bucket_minutes: 15
pipeline:
  schedule: 1m
deliver:
  channel: log
`)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.pipe == nil || a.store == nil {
		t.Fatal("pipeline and storage must be wired")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewRejectsUnknownChannel(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: memory
deliver:
  channel: carrier-pigeon
`)
	if _, err := New(path); err == nil {
		t.Fatal("want error for unknown delivery channel")
	}
}

func TestMapPipelineConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Pipeline.Schedule = "2m"
	cfg.Pipeline.DeliverTimeout = "5s"

	pc, err := mapPipelineConfig(cfg)
	if err != nil {
		t.Fatalf("mapPipelineConfig: %v", err)
	}
	if pc.DeliverTimeout != 5*time.Second {
		t.Fatalf("deliver timeout = %v, want 5s", pc.DeliverTimeout)
	}
	if pc.SweepInterval != time.Hour {
		t.Fatalf("sweep interval default = %v, want 1h", pc.SweepInterval)
	}

	// An explicit zero disables maintenance instead of defaulting.
	cfg.Dedup.SweepInterval = "0s"
	pc, err = mapPipelineConfig(cfg)
	if err != nil {
		t.Fatalf("mapPipelineConfig: %v", err)
	}
	if pc.SweepInterval != 0 {
		t.Fatalf("sweep interval = %v, want 0 (disabled)", pc.SweepInterval)
	}
}
