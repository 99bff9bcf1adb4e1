package dedup

import (
	"context"
	"sync/atomic"
	"time"

	"newsgate/internal/storage"
	logx "newsgate/pkg/logx"
)

const (
	// DefaultSeenTTL is how long a confirmed delivery suppresses an item id.
	DefaultSeenTTL = 7 * 24 * time.Hour

	storeReadTimeout  = 2 * time.Second
	storeWriteTimeout = 5 * time.Second
)

// SeenStore answers "did this exact item id already notify?". It is the sole
// authority on that question; rows exist only after a confirmed delivery.
type SeenStore struct {
	store storage.Store
	ttl   atomic.Int64 // nanoseconds, hot-reloadable
	log   logx.Logger
}

func NewSeenStore(store storage.Store, ttl time.Duration, log logx.Logger) *SeenStore {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &SeenStore{store: store, log: log}
	s.SetTTL(ttl)
	return s
}

func (s *SeenStore) TTL() time.Duration { return time.Duration(s.ttl.Load()) }

// SetTTL changes the suppression window for future marks. Existing rows keep
// the expiry they were written with.
func (s *SeenStore) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	s.ttl.Store(int64(ttl))
}

// IsSeen is a pure read with zero side effects. It fails open: any storage
// error reads as "not seen", because a transient fault must never
// permanently block an alert. Worst case is a duplicate, not a drop.
func (s *SeenStore) IsSeen(ctx context.Context, itemID string) bool {
	if s == nil || s.store == nil || itemID == "" {
		return false
	}
	rctx, cancel := context.WithTimeout(ctx, storeReadTimeout)
	defer cancel()
	_, ok, err := s.store.GetSeen(rctx, itemID)
	if err != nil {
		s.log.Warn("seen read failed; treating as not seen", logx.String("item_id", itemID), logx.Err(err))
		return false
	}
	return ok
}

// MarkSeen records a confirmed delivery. It is idempotent: re-marking only
// refreshes the expiry. Callers must invoke it strictly after delivery is
// confirmed, never before.
func (s *SeenStore) MarkSeen(ctx context.Context, itemID string) error {
	if s == nil || s.store == nil || itemID == "" {
		return nil
	}
	now := time.Now()
	wctx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()
	return s.store.PutSeen(wctx, storage.SeenRecord{
		ItemID:    itemID,
		FirstSeen: now,
		Expires:   now.Add(s.TTL()),
	})
}

// SweepExpired removes lapsed rows. Safe concurrently with reads and writes.
func (s *SeenStore) SweepExpired(ctx context.Context) (int64, error) {
	if s == nil || s.store == nil {
		return 0, nil
	}
	return s.store.SweepSeen(ctx, time.Now())
}
