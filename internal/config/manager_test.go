package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestManagerLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
storage:
  driver: sqlite
  path: ./state/newsgate.db
dedup:
  seen_ttl_days: 3
  bucket_minutes: 15
pipeline:
  schedule: "5m"
  workers: 2
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dedup.SeenTTLDays != 3 || cfg.Dedup.BucketMinutes != 15 {
		t.Fatalf("dedup config not parsed: %+v", cfg.Dedup)
	}
	if !cfg.Dedup.PersistEnabled() {
		t.Fatal("persist must default to enabled")
	}
	if cfg.Pipeline.Workers != 2 {
		t.Fatalf("pipeline.workers = %d", cfg.Pipeline.Workers)
	}
}

func TestManagerRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"dedup": {"seen_ttl_dayz": 3}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown field must be rejected")
	}
}

func TestManagerRejectsInvalidDriver(t *testing.T) {
	path := writeConfig(t, "config.json", `{"storage": {"driver": "cassandra"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("unknown storage driver must be rejected")
	}
}

func TestManagerEnvOverrides(t *testing.T) {
	t.Setenv(EnvSeenTTLDays, "14")
	t.Setenv(EnvBucketMinutes, "60")
	t.Setenv(EnvPersist, "false")

	path := writeConfig(t, "config.yaml", `
storage:
  driver: memory
dedup:
  seen_ttl_days: 7
`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dedup.SeenTTLDays != 14 {
		t.Fatalf("SeenTTLDays = %d, want env override 14", cfg.Dedup.SeenTTLDays)
	}
	if cfg.Dedup.BucketMinutes != 60 {
		t.Fatalf("BucketMinutes = %d, want env override 60", cfg.Dedup.BucketMinutes)
	}
	if cfg.Dedup.PersistEnabled() {
		t.Fatal("DEDUP_PERSIST_ENABLED=false must disable persistence")
	}
}

func TestManagerInvalidEnvValue(t *testing.T) {
	t.Setenv(EnvSeenTTLDays, "soon")
	path := writeConfig(t, "config.yaml", "storage:\n  driver: memory\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("invalid env value must be rejected")
	}
}

func TestValidateTelegramChannel(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
storage:
  driver: memory
deliver:
  channel: telegram
`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("telegram channel without token must be rejected")
	}
}

func TestSqlitePathRequiredUnlessDryRun(t *testing.T) {
	// Without a path the default sqlite driver cannot persist...
	path := writeConfig(t, "config.yaml", "dedup:\n  seen_ttl_days: 7\n")
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("sqlite without a path must be rejected")
	}

	// ...unless persistence is off, which swaps in the memory store anyway.
	path = writeConfig(t, "config2.yaml", "dedup:\n  persist: false\n")
	if _, err := NewManager(path).Load(); err != nil {
		t.Fatalf("dry-run config rejected: %v", err)
	}
}
