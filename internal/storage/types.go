package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite":   SQLite database file (default)
//   - "postgres": shared store for multi-instance deployments
//   - "memory":   process-local, empty after restart (dry-run/testing)
//
// If Driver is empty, "sqlite" is assumed.
type Config struct {
	Driver      string
	Path        string        // sqlite only
	DSN         string        // postgres only
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// SeenRecord is one row of the seen table. Its existence implies a prior
// successful delivery for that item id.
type SeenRecord struct {
	ItemID    string
	FirstSeen time.Time
	Expires   time.Time
}

// BucketRecord is one row of the buckets table.
type BucketRecord struct {
	Key         string
	Ticker      string
	BucketStart time.Time
	Expires     time.Time
}
