// Package pipeline drives the ingestion cycle: drain sources, collapse
// intra-cycle duplicates, classify, then push survivors through the dispatch
// gate on a bounded worker pool. One Service owns the schedule and the
// maintenance sweeps.
package pipeline

import (
	"context"
	"time"

	"newsgate/internal/event"
)

type Config struct {
	// Schedule is a cron spec ("*/5 * * * *", "@every 2m") or a plain Go
	// duration ("2m"). Empty disables the timer; Run can still be called.
	Schedule string

	// Workers bounds concurrent dispatches per cycle. Default 4.
	Workers int

	// DeliverTimeout caps a single delivery attempt. Default 30s.
	DeliverTimeout time.Duration

	// RetryMax is the number of extra in-cycle attempts after a transient
	// failure. Default 0: a failed item simply re-enters the next cycle,
	// which keeps "at most one deliver call per item per cycle" true.
	RetryMax      int
	RetryBase     time.Duration // default 500ms
	RetryMaxDelay time.Duration // default 10s

	// SweepInterval schedules the seen-TTL sweep and bucket prune.
	// Zero disables maintenance.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 30 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// Classifier turns a surviving candidate into an alert, or drops it.
// It runs after feed-level dedup and before the gate.
type Classifier interface {
	Classify(ctx context.Context, c event.Candidate) (event.Alert, bool)
}

// PassThrough alerts on every candidate with a zero score.
type PassThrough struct{}

func (PassThrough) Classify(_ context.Context, c event.Candidate) (event.Alert, bool) {
	return event.Alert{
		ItemID:      c.ItemID,
		Ticker:      c.Ticker,
		Title:       c.Title,
		URL:         c.URL,
		Source:      c.Source,
		PublishedAt: c.PublishedAt,
	}, true
}

// Summary is the per-cycle accounting, published on the bus and logged once
// per cycle so a quiet run still leaves a trace.
type Summary struct {
	CycleID     string
	Started     time.Time
	Duration    time.Duration
	SourceErrs  int
	Ingested    int
	FeedDuplic  int
	Classified  int
	SeenSkips   int
	BucketSkips int
	Poisoned    int
	Delivered   int
	FailedTrans int
	DroppedPerm int
}
