package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "newsgate/pkg/logx"
)

// postgresStore backs the dedup tables with a shared database so multiple
// instances can run against one seen/bucket state. Upsert writes keep
// concurrent writers safe; mark idempotence makes stronger isolation
// unnecessary.
type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS seen (
    item_id    TEXT PRIMARY KEY,
    first_seen TIMESTAMPTZ NOT NULL,
    expires    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_seen_expires ON seen(expires);

CREATE TABLE IF NOT EXISTS buckets (
    bucket_key   TEXT PRIMARY KEY,
    ticker       TEXT NOT NULL DEFAULT '',
    bucket_start TIMESTAMPTZ NOT NULL,
    expires      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_buckets_expires ON buckets(expires);
`

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	st := &postgresStore{pool: pool, log: log}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return st, nil
}

func (s *postgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *postgresStore) GetSeen(ctx context.Context, itemID string) (time.Time, bool, error) {
	if s == nil || s.pool == nil {
		return time.Time{}, false, ErrDisabled
	}
	if itemID == "" {
		return time.Time{}, false, nil
	}
	var exp time.Time
	err := s.pool.QueryRow(ctx, `SELECT expires FROM seen WHERE item_id = $1`, itemID).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if !time.Now().Before(exp) {
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

func (s *postgresStore) PutSeen(ctx context.Context, rec SeenRecord) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	if rec.ItemID == "" {
		return nil
	}
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seen(item_id, first_seen, expires) VALUES($1,$2,$3)
		 ON CONFLICT(item_id) DO UPDATE SET expires=excluded.expires`,
		rec.ItemID, rec.FirstSeen, rec.Expires,
	)
	return err
}

func (s *postgresStore) SweepSeen(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrDisabled
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM seen WHERE expires < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *postgresStore) GetBucket(ctx context.Context, key string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, ErrDisabled
	}
	if key == "" {
		return false, nil
	}
	var exp time.Time
	err := s.pool.QueryRow(ctx, `SELECT expires FROM buckets WHERE bucket_key = $1`, key).Scan(&exp)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().Before(exp), nil
}

func (s *postgresStore) PutBucket(ctx context.Context, rec BucketRecord) error {
	if s == nil || s.pool == nil {
		return ErrDisabled
	}
	if rec.Key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO buckets(bucket_key, ticker, bucket_start, expires) VALUES($1,$2,$3,$4)
		 ON CONFLICT(bucket_key) DO UPDATE SET expires=excluded.expires`,
		rec.Key, rec.Ticker, rec.BucketStart, rec.Expires,
	)
	return err
}

func (s *postgresStore) PruneBuckets(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrDisabled
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM buckets WHERE expires < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
