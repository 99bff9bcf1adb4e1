package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variables that override file values. They exist so operators
// can tune dedup behavior per deployment without editing the config file.
const (
	EnvSeenTTLDays   = "SEEN_TTL_DAYS"
	EnvBucketMinutes = "TEMPORAL_BUCKET_MINUTES"
	EnvPersist       = "DEDUP_PERSIST_ENABLED"
)

func applyEnvOverrides(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvSeenTTLDays)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid value %q", EnvSeenTTLDays, v)
		}
		cfg.Dedup.SeenTTLDays = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvBucketMinutes)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: invalid value %q", EnvBucketMinutes, v)
		}
		cfg.Dedup.BucketMinutes = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvPersist)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid value %q", EnvPersist, v)
		}
		cfg.Dedup.Persist = &b
	}
	return nil
}

// Validate rejects configs that cannot possibly run. Defaults are not
// filled in here; each consumer applies its own zero-value defaults.
func Validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		if cfg.Dedup.PersistEnabled() && strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.Dedup.SeenTTLDays < 0 {
		return fmt.Errorf("dedup.seen_ttl_days must be >= 0")
	}
	if cfg.Dedup.BucketMinutes < 0 {
		return fmt.Errorf("dedup.bucket_minutes must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Deliver.Channel)) {
	case "", "log":
	case "telegram":
		if strings.TrimSpace(cfg.Deliver.Telegram.Token) == "" {
			return fmt.Errorf("deliver.telegram.token is required for the telegram channel")
		}
		if cfg.Deliver.Telegram.ChatID == 0 {
			return fmt.Errorf("deliver.telegram.chat_id is required for the telegram channel")
		}
	default:
		return fmt.Errorf("deliver.channel: unknown channel %q", cfg.Deliver.Channel)
	}

	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"dedup.sweep_interval", cfg.Dedup.SweepInterval},
		{"pipeline.deliver_timeout", cfg.Pipeline.DeliverTimeout},
		{"pipeline.retry_base", cfg.Pipeline.RetryBase},
		{"pipeline.retry_max_delay", cfg.Pipeline.RetryMaxDelay},
	} {
		if _, err := ParseDurationOrDefault(f.path, f.raw, 0); err != nil {
			return err
		}
	}
	if cfg.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must be >= 0")
	}
	if cfg.Pipeline.RetryMax < 0 {
		return fmt.Errorf("pipeline.retry_max must be >= 0")
	}

	for i, src := range cfg.Ingest.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("ingest.sources[%d]: name is required", i)
		}
		if src.Kind == "websocket" && strings.TrimSpace(src.URL) == "" {
			return fmt.Errorf("ingest.sources[%d]: url is required for websocket sources", i)
		}
	}
	return nil
}
