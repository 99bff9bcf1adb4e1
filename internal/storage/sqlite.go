package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "newsgate/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSeen(ctx context.Context, itemID string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if itemID == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT expires FROM seen WHERE item_id = ?`, itemID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	exp := time.UnixMilli(ms)
	if !time.Now().Before(exp) {
		// Expired rows read as absent; the sweeper removes them later.
		return time.Time{}, false, nil
	}
	return exp, true, nil
}

func (s *sqliteStore) PutSeen(ctx context.Context, rec SeenRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.ItemID == "" {
		return nil
	}
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen(item_id, first_seen, expires) VALUES(?,?,?)
		 ON CONFLICT(item_id) DO UPDATE SET expires=excluded.expires`,
		rec.ItemID, rec.FirstSeen.UnixMilli(), rec.Expires.UnixMilli(),
	)
	s.maybePrune(err)
	return err
}

func (s *sqliteStore) SweepSeen(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen WHERE expires < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sqliteStore) GetBucket(ctx context.Context, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	if key == "" {
		return false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT expires FROM buckets WHERE bucket_key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().Before(time.UnixMilli(ms)), nil
}

func (s *sqliteStore) PutBucket(ctx context.Context, rec BucketRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if rec.Key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets(bucket_key, ticker, bucket_start, expires) VALUES(?,?,?,?)
		 ON CONFLICT(bucket_key) DO UPDATE SET expires=excluded.expires`,
		rec.Key, rec.Ticker, rec.BucketStart.UnixMilli(), rec.Expires.UnixMilli(),
	)
	s.maybePrune(err)
	return err
}

func (s *sqliteStore) PruneBuckets(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE expires < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// maybePrune opportunistically clears expired rows every N successful writes
// so the tables stay bounded even when the periodic sweeper is disabled.
func (s *sqliteStore) maybePrune(writeErr error) {
	if writeErr != nil || s.opCount.Add(1)%s.pruneEvery != 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	now := time.Now()
	if _, err := s.SweepSeen(ctx, now); err != nil {
		s.log.Debug("opportunistic seen sweep failed", logx.Err(err))
	}
	if _, err := s.PruneBuckets(ctx, now); err != nil {
		s.log.Debug("opportunistic bucket prune failed", logx.Err(err))
	}
}
