package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"newsgate/internal/dedup"
	"newsgate/internal/eventbus"
	"newsgate/internal/ingest"
	"newsgate/internal/runtime/supervisor"
	logx "newsgate/pkg/logx"
)

// Service runs cycles on a schedule and the maintenance sweeps alongside.
type Service struct {
	cfg        Config
	log        logx.Logger
	gate       *dedup.Gate
	seen       *dedup.SeenStore
	buckets    *dedup.Bucketer
	classifier Classifier
	deliverer  dedup.Deliverer
	sources    []ingest.Source
	bus        eventbus.Bus

	mu  sync.Mutex
	sup *supervisor.Supervisor
}

type Deps struct {
	Gate       *dedup.Gate
	Seen       *dedup.SeenStore
	Buckets    *dedup.Bucketer
	Classifier Classifier // nil means PassThrough
	Deliverer  dedup.Deliverer
	Sources    []ingest.Source
	Bus        eventbus.Bus // nil means a private bus
	Log        logx.Logger
}

func New(cfg Config, deps Deps) *Service {
	if deps.Classifier == nil {
		deps.Classifier = PassThrough{}
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New()
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Service{
		cfg:        cfg.withDefaults(),
		log:        deps.Log,
		gate:       deps.Gate,
		seen:       deps.Seen,
		buckets:    deps.Buckets,
		classifier: deps.Classifier,
		deliverer:  deps.Deliverer,
		sources:    deps.Sources,
		bus:        deps.Bus,
	}
}

// Start launches the schedule loop and the maintenance loop. It returns
// immediately; use Stop (or cancel the parent context) to shut down.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return nil
	}

	tick, err := nextFunc(s.cfg.Schedule)
	if err != nil {
		return err
	}

	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	if tick != nil {
		s.sup.Go("pipeline.schedule", func(ctx context.Context) error {
			return s.scheduleLoop(ctx, tick)
		})
	}
	if s.cfg.SweepInterval > 0 {
		s.sup.Go("pipeline.maintenance", s.maintenanceLoop)
	}
	return nil
}

// Stop cancels the loops and waits for in-flight work, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	for _, src := range s.sources {
		if err := src.Close(); err != nil {
			s.log.Warn("source close failed", logx.String("source", src.Name()), logx.Err(err))
		}
	}
	return sup.Wait(ctx)
}

func (s *Service) scheduleLoop(ctx context.Context, next func(time.Time) time.Time) error {
	for {
		wait := time.Until(next(time.Now()))
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		s.Run(ctx)
	}
}

func (s *Service) maintenanceLoop(ctx context.Context) error {
	tk := time.NewTicker(s.cfg.SweepInterval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
		}
		if n, err := s.seen.SweepExpired(ctx); err == nil && n > 0 {
			s.log.Info("swept expired seen records", logx.Int64("removed", n))
		}
		if n, err := s.buckets.Prune(ctx); err == nil && n > 0 {
			s.log.Info("pruned expired buckets", logx.Int64("removed", n))
		}
	}
}

// nextFunc turns the schedule string into a next-fire-time function. A plain
// Go duration becomes a fixed interval; anything else is parsed as a cron
// spec (standard 5-field or @-descriptor). Empty disables the loop.
func nextFunc(spec string) (func(time.Time) time.Time, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("pipeline.schedule: interval must be positive, got %q", spec)
		}
		return func(t time.Time) time.Time { return t.Add(d) }, nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("pipeline.schedule: %w", err)
	}
	return sched.Next, nil
}
