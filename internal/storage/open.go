package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "newsgate/pkg/logx"
)

// Store is the persistence API used by the dedup layer.
//
// All writes are idempotent upserts so they stay safe under concurrent
// writers sharing one database (last write wins on expiry).
type Store interface {
	// GetSeen returns the expiry of a seen record, or ok=false if absent.
	// Expired rows are reported as absent; lazy deletion is the sweeper's job.
	GetSeen(ctx context.Context, itemID string) (expires time.Time, ok bool, err error)
	// PutSeen records a confirmed delivery for itemID.
	PutSeen(ctx context.Context, rec SeenRecord) error
	// SweepSeen deletes rows whose expiry is before now and returns the count.
	SweepSeen(ctx context.Context, now time.Time) (int64, error)

	// GetBucket reports whether a live bucket row exists for key.
	GetBucket(ctx context.Context, key string) (ok bool, err error)
	// PutBucket records the first occurrence of a signature in its window.
	PutBucket(ctx context.Context, rec BucketRecord) error
	// PruneBuckets deletes expired bucket rows and returns the count.
	PruneBuckets(ctx context.Context, now time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "pgx":
		return openPostgres(ctx, cfg, log)
	case "memory", "none":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
