package dedup

import (
	"context"
	"errors"
	"sync"
	"time"

	"newsgate/internal/event"
	logx "newsgate/pkg/logx"
)

// State tracks one item through the dispatch gate within a cycle.
type State string

const (
	StatePending        State = "pending"
	StateSeenSkip       State = "seen_skip"
	StateDelivering     State = "delivering"
	StateDelivered      State = "delivered"
	StateDeliveryFailed State = "delivery_failed"
	StateMarked         State = "marked"
)

// SkipReason distinguishes why IsNew said no.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipSeen      SkipReason = "seen"       // exact item id already delivered
	SkipBucket    SkipReason = "bucket"     // identical content inside cooldown window
	SkipPermanent SkipReason = "poisoned"   // delivery was rejected permanently earlier
)

// Decision is the read-only answer to "should this item alert?", computed
// before classification so nothing is scored that can't notify anyway.
type Decision struct {
	ShouldAlert bool
	Reason      SkipReason
	Signature   Signature
	BucketKey   string
}

// Deliverer is the external notification channel. It is called at most once
// per Pending -> Delivering transition per item per cycle.
type Deliverer interface {
	Deliver(ctx context.Context, a event.Alert) event.Outcome
}

// PermanentError marks a delivery failure that must not be retried (payload
// rejected, 4xx). The gate drops such items without marking them seen;
// operator visibility comes from logs and counters.
type PermanentError interface {
	error
	Permanent() bool
}

// Gate orchestrates check-seen -> deliver -> mark-seen and guarantees the
// mark fires iff delivery is confirmed. That ordering is the whole point:
// mark strictly downstream of confirmed delivery, never upstream, never in
// parallel.
type Gate struct {
	seen    *SeenStore
	buckets *Bucketer
	log     logx.Logger

	// poisoned holds item ids whose delivery failed permanently. In-process
	// only: after a restart such items are re-evaluated once more, which is
	// the accepted fail-open tradeoff.
	pmu      sync.Mutex
	poisoned map[string]struct{}
}

func NewGate(seen *SeenStore, buckets *Bucketer, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gate{
		seen:     seen,
		buckets:  buckets,
		log:      log,
		poisoned: map[string]struct{}{},
	}
}

// IsNew composes the id check and the bucket check, read-only. No state
// changes happen here; both underlying reads fail open.
func (g *Gate) IsNew(ctx context.Context, itemID, ticker, title, url string, ts time.Time) Decision {
	sig := NewSignature(ticker, title, url)

	if g.isPoisoned(itemID) {
		return Decision{Reason: SkipPermanent, Signature: sig}
	}
	if g.seen.IsSeen(ctx, itemID) {
		return Decision{Reason: SkipSeen, Signature: sig}
	}

	key := g.buckets.BucketKey(sig, ts)
	if !g.buckets.ShouldAlert(ctx, key) {
		return Decision{Reason: SkipBucket, Signature: sig, BucketKey: key}
	}
	return Decision{ShouldAlert: true, Signature: sig, BucketKey: key}
}

// ConfirmDelivered is the only write entry point. Called exactly once per
// successfully delivered item; idempotent if called again. Mark failures are
// logged and swallowed: the item stays un-marked and is redelivered next
// cycle, an accepted bounded cost.
func (g *Gate) ConfirmDelivered(ctx context.Context, itemID string, sig Signature, ts time.Time) {
	if err := g.seen.MarkSeen(ctx, itemID); err != nil {
		g.log.Warn("mark seen failed; item will redeliver next cycle",
			logx.String("item_id", itemID), logx.Err(err))
	}
	if err := g.buckets.Record(ctx, sig, ts); err != nil {
		g.log.Warn("bucket record failed",
			logx.String("item_id", itemID), logx.Err(err))
	}
}

// Result is the terminal record of one item's trip through the gate.
type Result struct {
	State    State
	Decision Decision
	Outcome  event.Outcome
}

// Dispatch runs one item through the full state machine and returns its
// terminal state for this cycle.
//
//	Pending -> SeenSkip                         (terminal, a skip not an error)
//	Pending -> Delivering -> Delivered -> Marked
//	Pending -> Delivering -> DeliveryFailed     (transient: re-evaluated next cycle)
func (g *Gate) Dispatch(ctx context.Context, a event.Alert, ts time.Time, d Deliverer) Result {
	dec := g.IsNew(ctx, a.ItemID, a.Ticker, a.Title, a.URL, ts)
	if !dec.ShouldAlert {
		return Result{State: StateSeenSkip, Decision: dec}
	}

	out := d.Deliver(ctx, a)
	if !out.Delivered {
		var perr PermanentError
		if errors.As(out.Err, &perr) && perr.Permanent() {
			// Never retried, never marked seen.
			g.poison(a.ItemID)
			g.log.Error("delivery rejected permanently; dropping item",
				logx.String("item_id", a.ItemID), logx.Err(out.Err))
		}
		return Result{State: StateDeliveryFailed, Decision: dec, Outcome: out}
	}

	// Once delivered, the event never re-enters Pending. Marking is attempted
	// even if it errors; errors are non-fatal and only logged.
	g.ConfirmDelivered(ctx, a.ItemID, dec.Signature, ts)
	return Result{State: StateMarked, Decision: dec, Outcome: out}
}

func (g *Gate) isPoisoned(itemID string) bool {
	g.pmu.Lock()
	_, ok := g.poisoned[itemID]
	g.pmu.Unlock()
	return ok
}

func (g *Gate) poison(itemID string) {
	if itemID == "" {
		return
	}
	g.pmu.Lock()
	g.poisoned[itemID] = struct{}{}
	g.pmu.Unlock()
}
