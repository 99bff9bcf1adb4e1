package dedup

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"newsgate/internal/storage"
	logx "newsgate/pkg/logx"
)

// DefaultBucketWindow is the cooldown before identical content may re-alert.
const DefaultBucketWindow = 30 * time.Minute

// Bucketer scopes signature suppression to coarse time windows so the same
// story can legitimately alert again later without unbounded state growth.
//
// Bucketing is floor division: timestamps are truncated to the window width.
// Two events one second apart can land in different buckets when they
// straddle a boundary; that looseness is accepted rather than papered over
// with a sliding window, which would change state size and semantics.
type Bucketer struct {
	store  storage.Store
	window atomic.Int64 // nanoseconds, hot-reloadable
	log    logx.Logger
}

func NewBucketer(store storage.Store, window time.Duration, log logx.Logger) *Bucketer {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bucketer{store: store, log: log}
	b.SetWindow(window)
	return b
}

func (b *Bucketer) Window() time.Duration { return time.Duration(b.window.Load()) }

// SetWindow changes the bucket width for future keys. Changing it mid-window
// re-keys in-flight content, which at worst re-alerts once.
func (b *Bucketer) SetWindow(window time.Duration) {
	if window <= 0 {
		window = DefaultBucketWindow
	}
	b.window.Store(int64(window))
}

// BucketKey builds the storage key for (signature, ticker) in the window
// containing ts. Ticker scoping keeps identical boilerplate about two
// different tickers from colliding.
func (b *Bucketer) BucketKey(sig Signature, ts time.Time) string {
	if sig.IsZero() {
		return ""
	}
	start := ts.UTC().Truncate(b.Window())
	return fmt.Sprintf("%s|%s|%d", sig.Hash, sig.Ticker, start.Unix())
}

// ShouldAlert reports whether key is the first occurrence in its window.
// Fails open on storage errors.
func (b *Bucketer) ShouldAlert(ctx context.Context, key string) bool {
	if b == nil || b.store == nil || key == "" {
		return true
	}
	rctx, cancel := context.WithTimeout(ctx, storeReadTimeout)
	defer cancel()
	ok, err := b.store.GetBucket(rctx, key)
	if err != nil {
		b.log.Warn("bucket read failed; allowing alert", logx.String("key", key), logx.Err(err))
		return true
	}
	return !ok
}

// Record claims the window for key. Idempotent; last write wins on expiry.
func (b *Bucketer) Record(ctx context.Context, sig Signature, ts time.Time) error {
	if b == nil || b.store == nil || sig.IsZero() {
		return nil
	}
	start := ts.UTC().Truncate(b.Window())
	wctx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()
	return b.store.PutBucket(wctx, storage.BucketRecord{
		Key:         b.BucketKey(sig, ts),
		Ticker:      sig.Ticker,
		BucketStart: start,
		// A row is irrelevant once its window has passed; keep it one extra
		// window so late stragglers still hit it, then let pruning collect it.
		Expires: start.Add(2 * b.Window()),
	})
}

// Prune removes stale rows. Buckets expire naturally as bucket_start
// advances; this is hygiene, not correctness.
func (b *Bucketer) Prune(ctx context.Context) (int64, error) {
	if b == nil || b.store == nil {
		return 0, nil
	}
	return b.store.PruneBuckets(ctx, time.Now())
}
