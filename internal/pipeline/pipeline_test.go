package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsgate/internal/dedup"
	"newsgate/internal/deliver"
	"newsgate/internal/event"
	"newsgate/internal/eventbus"
	"newsgate/internal/ingest"
	"newsgate/internal/storage"
	logx "newsgate/pkg/logx"
)

type fakeDeliverer struct {
	errs     []error // consumed per call; nil means success
	attempts int
}

func (f *fakeDeliverer) Deliver(_ context.Context, a event.Alert) event.Outcome {
	f.attempts++
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	if err != nil {
		return event.Outcome{ItemID: a.ItemID, AttemptedAt: time.Now(), Err: err}
	}
	return event.Outcome{ItemID: a.ItemID, Delivered: true, AttemptedAt: time.Now()}
}

func newTestService(t *testing.T, d dedup.Deliverer, sources ...ingest.Source) (*Service, eventbus.Bus) {
	t.Helper()
	st := storage.NewMemory()
	seen := dedup.NewSeenStore(st, 7*24*time.Hour, logx.Nop())
	buckets := dedup.NewBucketer(st, 30*time.Minute, logx.Nop())
	bus := eventbus.New()
	svc := New(Config{Workers: 2, DeliverTimeout: time.Second}, Deps{
		Gate:      dedup.NewGate(seen, buckets, logx.Nop()),
		Seen:      seen,
		Buckets:   buckets,
		Deliverer: d,
		Sources:   sources,
		Bus:       bus,
	})
	return svc, bus
}

func candidate(id, ticker, title, url string) event.Candidate {
	return event.Candidate{ItemID: id, Ticker: ticker, Title: title, URL: url, Source: event.SourcePressRelease}
}

func TestRunDeliversAndSuppressesNextCycle(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{}
	src := ingest.NewStatic("a", []event.Candidate{
		candidate("A1", "TOVX", "Theriva announces trial results", "https://example.com/a1"),
		candidate("A1", "TOVX", "Theriva announces trial results", "https://example.com/a1"), // exact dup
		candidate("B1", "ACME", "Acme files 8-K", "https://example.com/b1"),
	})
	svc, _ := newTestService(t, d, src)

	sum := svc.Run(context.Background())
	if sum.Ingested != 3 || sum.FeedDuplic != 1 {
		t.Fatalf("ingested=%d feed_dups=%d, want 3/1", sum.Ingested, sum.FeedDuplic)
	}
	if sum.Delivered != 2 || d.attempts != 2 {
		t.Fatalf("delivered=%d attempts=%d, want 2/2", sum.Delivered, d.attempts)
	}

	// Same items next cycle: both skipped on the id check.
	src2 := ingest.NewStatic("a", []event.Candidate{
		candidate("A1", "TOVX", "Theriva announces trial results", "https://example.com/a1"),
		candidate("B1", "ACME", "Acme files 8-K", "https://example.com/b1"),
	})
	svc.sources = []ingest.Source{src2}
	sum = svc.Run(context.Background())
	if sum.SeenSkips != 2 || sum.Delivered != 0 {
		t.Fatalf("seen_skips=%d delivered=%d, want 2/0", sum.SeenSkips, sum.Delivered)
	}
	if d.attempts != 2 {
		t.Fatalf("deliverer called again for seen items: attempts=%d", d.attempts)
	}
}

func TestTransientFailureRedeliversNextCycle(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{errs: []error{deliver.Transient(errors.New("timeout"))}}
	mk := func() ingest.Source {
		return ingest.NewStatic("a", []event.Candidate{
			candidate("A1", "TOVX", "Trial results", "https://example.com/a1"),
		})
	}
	svc, _ := newTestService(t, d, mk())

	sum := svc.Run(context.Background())
	if sum.FailedTrans != 1 || sum.Delivered != 0 {
		t.Fatalf("failed=%d delivered=%d, want 1/0", sum.FailedTrans, sum.Delivered)
	}

	svc.sources = []ingest.Source{mk()}
	sum = svc.Run(context.Background())
	if sum.Delivered != 1 {
		t.Fatalf("second cycle delivered=%d, want 1", sum.Delivered)
	}
	if d.attempts != 2 {
		t.Fatalf("attempts=%d, want 2 (one per cycle)", d.attempts)
	}
}

func TestPermanentFailureDropsForGood(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{errs: []error{deliver.Permanent(errors.New("payload rejected"))}}
	mk := func() ingest.Source {
		return ingest.NewStatic("a", []event.Candidate{
			candidate("A1", "TOVX", "Trial results", "https://example.com/a1"),
		})
	}
	svc, _ := newTestService(t, d, mk())

	sum := svc.Run(context.Background())
	if sum.DroppedPerm != 1 {
		t.Fatalf("dropped=%d, want 1", sum.DroppedPerm)
	}

	svc.sources = []ingest.Source{mk()}
	sum = svc.Run(context.Background())
	if sum.Poisoned != 1 || d.attempts != 1 {
		t.Fatalf("poisoned=%d attempts=%d, want 1/1", sum.Poisoned, d.attempts)
	}
}

func TestCrossSourceContentSuppressedAcrossCycles(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{}
	svc, _ := newTestService(t, d, ingest.NewStatic("sec", []event.Candidate{
		candidate("F1", "TOVX", "Form 8-K current report",
			"https://www.sec.gov/Archives/edgar/data/1075415/000119312524249922/0001193125-24-249922-index.htm"),
	}))
	if sum := svc.Run(context.Background()); sum.Delivered != 1 {
		t.Fatalf("first cycle delivered=%d, want 1", sum.Delivered)
	}

	// Minutes later an aggregator echoes the same accession under its own id
	// and a rewritten headline. Same content hash, same window: suppressed.
	svc.sources = []ingest.Source{ingest.NewStatic("wire", []event.Candidate{
		candidate("W9", "TOVX", "Form 8-K Current Report",
			"https://sec.report/Document/0001193125-24-249922/"),
	})}
	sum := svc.Run(context.Background())
	if sum.BucketSkips != 1 || sum.Delivered != 0 {
		t.Fatalf("bucket_skips=%d delivered=%d, want 1/0", sum.BucketSkips, sum.Delivered)
	}
}

func TestBucketingUsesPublishedAt(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{}
	// Anchor on a window boundary so the +10m republication stays inside it.
	base := time.Now().Truncate(30 * time.Minute).Add(5 * time.Minute)
	mk := func(id string, at time.Time) ingest.Source {
		c := candidate(id, "TOVX", "Trial results", "https://example.com/shared")
		c.PublishedAt = at
		return ingest.NewStatic("a", []event.Candidate{c})
	}
	svc, _ := newTestService(t, d, mk("A1", base))

	if sum := svc.Run(context.Background()); sum.Delivered != 1 {
		t.Fatalf("first cycle delivered=%d, want 1", sum.Delivered)
	}

	// Republished under a new id with a publication time in the same window:
	// suppressed regardless of when the cycle actually runs.
	svc.sources = []ingest.Source{mk("A2", base.Add(10*time.Minute))}
	if sum := svc.Run(context.Background()); sum.BucketSkips != 1 || sum.Delivered != 0 {
		t.Fatalf("in-window bucket_skips=%d delivered=%d, want 1/0", sum.BucketSkips, sum.Delivered)
	}

	// Published two hours later it lands in a fresh window and alerts again.
	svc.sources = []ingest.Source{mk("A3", base.Add(2*time.Hour))}
	if sum := svc.Run(context.Background()); sum.Delivered != 1 {
		t.Fatalf("later window delivered=%d, want 1", sum.Delivered)
	}
}

func TestCycleDonePublishedOnBus(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{}
	svc, bus := newTestService(t, d, ingest.NewStatic("a", []event.Candidate{
		candidate("A1", "TOVX", "Trial results", "https://example.com/a1"),
	}))
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	svc.Run(context.Background())

	var sawDone, sawDelivered bool
	for {
		select {
		case e := <-ch:
			switch e.Type {
			case eventbus.TypeCycleDone:
				sawDone = true
			case eventbus.TypeAlertDelivered:
				sawDelivered = true
			}
		default:
			if !sawDone || !sawDelivered {
				t.Fatalf("bus events missing: done=%v delivered=%v", sawDone, sawDelivered)
			}
			return
		}
	}
}

func TestRetryDelivererRetriesTransientOnly(t *testing.T) {
	t.Parallel()
	d := &fakeDeliverer{errs: []error{deliver.Transient(errors.New("flood")), nil}}
	r := &retryDeliverer{next: d, max: 2, base: time.Millisecond, maxDelay: 5 * time.Millisecond}
	out := r.Deliver(context.Background(), event.Alert{ItemID: "A1"})
	if !out.Delivered || d.attempts != 2 {
		t.Fatalf("delivered=%v attempts=%d, want true/2", out.Delivered, d.attempts)
	}

	d2 := &fakeDeliverer{errs: []error{deliver.Permanent(errors.New("rejected"))}}
	r2 := &retryDeliverer{next: d2, max: 3, base: time.Millisecond, maxDelay: 5 * time.Millisecond}
	out = r2.Deliver(context.Background(), event.Alert{ItemID: "A1"})
	if out.Delivered || d2.attempts != 1 {
		t.Fatalf("permanent error retried: attempts=%d", d2.attempts)
	}
}

func TestNextFunc(t *testing.T) {
	t.Parallel()
	tests := []struct {
		spec    string
		wantNil bool
		wantErr bool
	}{
		{spec: "", wantNil: true},
		{spec: "2m"},
		{spec: "*/5 * * * *"},
		{spec: "@every 30s"},
		{spec: "-1m", wantErr: true},
		{spec: "not a schedule", wantErr: true},
	}
	for _, tc := range tests {
		next, err := nextFunc(tc.spec)
		if tc.wantErr {
			if err == nil {
				t.Errorf("nextFunc(%q): want error", tc.spec)
			}
			continue
		}
		if err != nil {
			t.Errorf("nextFunc(%q): %v", tc.spec, err)
			continue
		}
		if (next == nil) != tc.wantNil {
			t.Errorf("nextFunc(%q): nil=%v, want %v", tc.spec, next == nil, tc.wantNil)
		}
		if next != nil {
			now := time.Now()
			if got := next(now); !got.After(now) {
				t.Errorf("nextFunc(%q): next fire %v not after now", tc.spec, got)
			}
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	t.Parallel()
	base, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 12; attempt++ {
		d := backoff(base, max, attempt)
		if d < base || d > max+max/4 {
			t.Fatalf("attempt %d: backoff %v outside [%v, %v]", attempt, d, base, max+max/4)
		}
	}
}
