package config

// Config is the on-disk configuration (JSON or YAML). Unknown fields are
// rejected so typos fail loudly at startup instead of silently defaulting.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "30m").
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Dedup    DedupConfig    `json:"dedup"`
	Pipeline PipelineConfig `json:"pipeline"`
	Deliver  DeliverConfig  `json:"deliver"`
	Ingest   IngestConfig   `json:"ingest"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"` // nil means true
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

type StorageConfig struct {
	// Driver: "sqlite" (default), "postgres", or "memory".
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"` // sqlite database file
	DSN    string `json:"dsn,omitempty"`  // postgres connection string
	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// DedupConfig controls the seen store and temporal bucketing.
//
// Env overrides (applied after file parse, before validation):
//   - SEEN_TTL_DAYS          -> SeenTTLDays
//   - TEMPORAL_BUCKET_MINUTES -> BucketMinutes
//   - DEDUP_PERSIST_ENABLED   -> Persist
type DedupConfig struct {
	SeenTTLDays   int `json:"seen_ttl_days,omitempty"`  // default 7
	BucketMinutes int `json:"bucket_minutes,omitempty"` // default 30
	// Persist is a pointer to distinguish "omitted" (default true) from an
	// explicit false. False makes the store always-empty: dry-run/testing.
	Persist *bool `json:"persist,omitempty"`
	// SweepInterval schedules the TTL sweeper. Default "1h"; "0s" disables.
	SweepInterval string `json:"sweep_interval,omitempty"`
}

func (d DedupConfig) PersistEnabled() bool {
	return d.Persist == nil || *d.Persist
}

type PipelineConfig struct {
	// Schedule is a cron spec ("*/5 * * * *") or a Go duration ("2m").
	Schedule       string `json:"schedule,omitempty"`
	Workers        int    `json:"workers,omitempty"` // default 4
	DeliverTimeout string `json:"deliver_timeout,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
}

type DeliverConfig struct {
	// Channel: "telegram" or "log" (default "log").
	Channel  string `json:"channel,omitempty"`
	Telegram struct {
		Token      string `json:"token,omitempty"`
		ChatID     int64  `json:"chat_id,omitempty"`
		ThreadID   int    `json:"thread_id,omitempty"`
		RatePerSec int    `json:"rate_per_sec,omitempty"` // default 3
	} `json:"telegram,omitempty"`
}

type IngestConfig struct {
	Sources []SourceConfig `json:"sources,omitempty"`
}

type SourceConfig struct {
	Name string `json:"name"`
	// Kind: "websocket" is the only wire source; tests use in-process ones.
	Kind string `json:"kind"`
	URL  string `json:"url,omitempty"`
}
