// Package ingest collects candidate events from configured sources at the
// start of each cycle. Sources are external collaborators; this package only
// defines the contract and the wire adapters.
package ingest

import (
	"context"

	"newsgate/internal/event"
)

// Source hands over the candidates that accumulated since the last drain.
// Drain must be cheap and non-blocking beyond ctx; a source that buffers from
// a live connection returns whatever it has, a poll-based source fetches.
type Source interface {
	Name() string
	Drain(ctx context.Context) ([]event.Candidate, error)
	Close() error
}

// Static is a fixed in-memory source, used by tests and one-shot runs.
type Static struct {
	name  string
	items []event.Candidate
	used  bool
}

func NewStatic(name string, items []event.Candidate) *Static {
	return &Static{name: name, items: items}
}

func (s *Static) Name() string { return s.name }

func (s *Static) Drain(context.Context) ([]event.Candidate, error) {
	if s.used {
		return nil, nil
	}
	s.used = true
	return s.items, nil
}

func (s *Static) Close() error { return nil }

// Merge drains every source in order and concatenates the batches.
// Per-source failures are returned alongside whatever was collected; one
// broken feed must not empty the whole cycle.
func Merge(ctx context.Context, sources []Source) ([]event.Candidate, []error) {
	var (
		out  []event.Candidate
		errs []error
	)
	for _, src := range sources {
		items, err := src.Drain(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, items...)
	}
	return out, errs
}
