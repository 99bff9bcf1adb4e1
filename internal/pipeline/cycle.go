package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"newsgate/internal/dedup"
	"newsgate/internal/deliver"
	"newsgate/internal/event"
	"newsgate/internal/eventbus"
	"newsgate/internal/ingest"
	logx "newsgate/pkg/logx"
)

// Run executes one full cycle and returns its accounting. Safe to call
// directly (one-shot mode) or from the schedule loop; the loop never
// overlaps cycles.
func (s *Service) Run(ctx context.Context) Summary {
	sum := Summary{CycleID: uuid.NewString(), Started: time.Now()}
	log := s.log.With(logx.String("cycle_id", sum.CycleID))

	candidates, errs := ingest.Merge(ctx, s.sources)
	sum.SourceErrs = len(errs)
	for _, err := range errs {
		log.Warn("source drain failed", logx.Err(err))
	}
	sum.Ingested = len(candidates)

	kept := dedup.FeedDedupe(candidates)
	sum.FeedDuplic = sum.Ingested - len(kept)

	alerts := make([]event.Alert, 0, len(kept))
	for _, c := range kept {
		if ctx.Err() != nil {
			break
		}
		a, ok := s.classifier.Classify(ctx, c)
		if !ok {
			continue
		}
		alerts = append(alerts, a)
	}
	sum.Classified = len(alerts)

	s.dispatchAll(ctx, log, alerts, &sum)

	sum.Duration = time.Since(sum.Started)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleDone, Data: sum})
	log.Info("cycle done",
		logx.Int("ingested", sum.Ingested),
		logx.Int("feed_dups", sum.FeedDuplic),
		logx.Int("seen_skips", sum.SeenSkips),
		logx.Int("bucket_skips", sum.BucketSkips),
		logx.Int("delivered", sum.Delivered),
		logx.Int("failed", sum.FailedTrans),
		logx.Int("dropped", sum.DroppedPerm),
		logx.Duration("took", sum.Duration))
	return sum
}

// dispatchAll fans alerts out to a bounded worker pool. Each worker runs one
// alert through the gate at a time; summary counters are folded under one
// mutex since contention is negligible at these volumes.
func (s *Service) dispatchAll(ctx context.Context, log logx.Logger, alerts []event.Alert, sum *Summary) {
	if len(alerts) == 0 {
		return
	}

	workers := s.cfg.Workers
	if workers > len(alerts) {
		workers = len(alerts)
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		queue = make(chan event.Alert)
	)
	d := s.cycleDeliverer()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range queue {
				res := s.gate.Dispatch(ctx, a, eventTime(a), d)
				s.publishResult(a, res)
				mu.Lock()
				s.count(sum, res)
				mu.Unlock()
				if res.State == dedup.StateDeliveryFailed && !deliver.IsPermanent(res.Outcome.Err) {
					log.Warn("delivery failed; will retry next cycle",
						logx.String("item_id", a.ItemID), logx.Err(res.Outcome.Err))
				}
			}
		}()
	}

feed:
	for _, a := range alerts {
		select {
		case <-ctx.Done():
			break feed
		case queue <- a:
		}
	}
	close(queue)
	wg.Wait()
}

// eventTime picks the timestamp temporal bucketing runs on. Sources that
// report a publication time bucket on it; the rest bucket on arrival.
func eventTime(a event.Alert) time.Time {
	if !a.PublishedAt.IsZero() {
		return a.PublishedAt
	}
	return time.Now()
}

func (s *Service) count(sum *Summary, res dedup.Result) {
	switch res.State {
	case dedup.StateSeenSkip:
		switch res.Decision.Reason {
		case dedup.SkipBucket:
			sum.BucketSkips++
		case dedup.SkipPermanent:
			sum.Poisoned++
		default:
			sum.SeenSkips++
		}
	case dedup.StateMarked:
		sum.Delivered++
	case dedup.StateDeliveryFailed:
		if deliver.IsPermanent(res.Outcome.Err) {
			sum.DroppedPerm++
		} else {
			sum.FailedTrans++
		}
	}
}

func (s *Service) publishResult(a event.Alert, res dedup.Result) {
	switch res.State {
	case dedup.StateSeenSkip:
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertDeduped, Data: AlertEvent{
			ItemID: a.ItemID, Ticker: a.Ticker, Reason: string(res.Decision.Reason),
		}})
	case dedup.StateMarked:
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertDelivered, Data: AlertEvent{
			ItemID: a.ItemID, Ticker: a.Ticker,
		}})
	case dedup.StateDeliveryFailed:
		ev := AlertEvent{ItemID: a.ItemID, Ticker: a.Ticker}
		if res.Outcome.Err != nil {
			ev.Error = res.Outcome.Err.Error()
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertFailed, Data: ev})
	}
}

// AlertEvent is the bus payload for per-alert outcomes.
type AlertEvent struct {
	ItemID string `json:"item_id"`
	Ticker string `json:"ticker,omitempty"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
}

// cycleDeliverer wraps the channel with the per-attempt timeout and, when
// RetryMax > 0, in-cycle retries on transient failures.
func (s *Service) cycleDeliverer() dedup.Deliverer {
	d := dedup.Deliverer(&timeoutDeliverer{next: s.deliverer, timeout: s.cfg.DeliverTimeout})
	if s.cfg.RetryMax > 0 {
		d = &retryDeliverer{
			next:     d,
			max:      s.cfg.RetryMax,
			base:     s.cfg.RetryBase,
			maxDelay: s.cfg.RetryMaxDelay,
		}
	}
	return d
}

type timeoutDeliverer struct {
	next    dedup.Deliverer
	timeout time.Duration
}

func (t *timeoutDeliverer) Deliver(ctx context.Context, a event.Alert) event.Outcome {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	out := t.next.Deliver(ctx, a)
	if !out.Delivered && out.Err != nil && errors.Is(out.Err, context.DeadlineExceeded) {
		out.Err = deliver.Transient(out.Err)
	}
	return out
}

type retryDeliverer struct {
	next     dedup.Deliverer
	max      int
	base     time.Duration
	maxDelay time.Duration
}

func (r *retryDeliverer) Deliver(ctx context.Context, a event.Alert) event.Outcome {
	out := r.next.Deliver(ctx, a)
	for attempt := 1; attempt <= r.max; attempt++ {
		if out.Delivered || deliver.IsPermanent(out.Err) || ctx.Err() != nil {
			return out
		}
		select {
		case <-ctx.Done():
			return out
		case <-time.After(backoff(r.base, r.maxDelay, attempt)):
		}
		out = r.next.Deliver(ctx, a)
	}
	return out
}

// backoff returns base*2^(attempt-1) capped at maxDelay, with up to 25%
// jitter so parallel retriers don't synchronize.
func backoff(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
