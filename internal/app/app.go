// Package app wires configuration, logging, storage, deduplication, delivery
// and the pipeline into one runnable unit.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"newsgate/internal/config"
	"newsgate/internal/dedup"
	"newsgate/internal/deliver"
	"newsgate/internal/eventbus"
	"newsgate/internal/ingest"
	"newsgate/internal/pipeline"
	"newsgate/internal/runtime/supervisor"
	"newsgate/internal/storage"
	logx "newsgate/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store
	pipe  *pipeline.Service
	ws    []*ingest.WS

	seen    *dedup.SeenStore
	buckets *dedup.Bucketer
	tg      *deliver.Telegram

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, logs: logSvc, log: log, bus: eventbus.New()}
	if err := a.build(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	return a, nil
}

// build maps the validated config onto the service graph. Called once at
// startup; hot reload only re-applies the safe subset (see applyReload).
func (a *App) build(cfg *config.Config) error {
	stCfg := storage.Config{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	}
	if !cfg.Dedup.PersistEnabled() {
		stCfg.Driver = "memory"
	}
	bt, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	stCfg.BusyTimeout = bt
	store, err := storage.Open(context.Background(), stCfg, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store
	a.log.Info("storage ready", logx.String("driver", stCfg.Driver))

	ttlDays := cfg.Dedup.SeenTTLDays
	if ttlDays <= 0 {
		ttlDays = 7
	}
	bucketMin := cfg.Dedup.BucketMinutes
	if bucketMin <= 0 {
		bucketMin = 30
	}
	seen := dedup.NewSeenStore(store, time.Duration(ttlDays)*24*time.Hour, a.log.With(logx.String("comp", "seen")))
	buckets := dedup.NewBucketer(store, time.Duration(bucketMin)*time.Minute, a.log.With(logx.String("comp", "buckets")))
	gate := dedup.NewGate(seen, buckets, a.log.With(logx.String("comp", "gate")))
	a.seen, a.buckets = seen, buckets

	d, err := a.buildDeliverer(cfg)
	if err != nil {
		return err
	}

	sources, err := a.buildSources(cfg)
	if err != nil {
		return err
	}

	pcfg, err := mapPipelineConfig(cfg)
	if err != nil {
		return err
	}
	a.pipe = pipeline.New(pcfg, pipeline.Deps{
		Gate:      gate,
		Seen:      seen,
		Buckets:   buckets,
		Deliverer: d,
		Sources:   sources,
		Bus:       a.bus,
		Log:       a.log.With(logx.String("comp", "pipeline")),
	})
	return nil
}

func (a *App) buildDeliverer(cfg *config.Config) (dedup.Deliverer, error) {
	switch cfg.Deliver.Channel {
	case "telegram":
		tg, err := deliver.NewTelegram(deliver.TelegramConfig{
			Token:      cfg.Deliver.Telegram.Token,
			ChatID:     cfg.Deliver.Telegram.ChatID,
			ThreadID:   cfg.Deliver.Telegram.ThreadID,
			RatePerSec: cfg.Deliver.Telegram.RatePerSec,
		}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		a.tg = tg
		return tg, nil
	case "", "log":
		return deliver.NewLog(a.log.With(logx.String("comp", "deliver"))), nil
	default:
		return nil, fmt.Errorf("deliver.channel: unknown channel %q", cfg.Deliver.Channel)
	}
}

func (a *App) buildSources(cfg *config.Config) ([]ingest.Source, error) {
	var out []ingest.Source
	for _, sc := range cfg.Ingest.Sources {
		switch sc.Kind {
		case "websocket":
			ws := ingest.NewWS(ingest.WSConfig{Name: sc.Name, URL: sc.URL},
				a.log.With(logx.String("comp", "ingest")))
			a.ws = append(a.ws, ws)
			out = append(out, ws)
		default:
			return nil, fmt.Errorf("ingest.sources[%s]: unknown kind %q", sc.Name, sc.Kind)
		}
	}
	return out, nil
}

func mapPipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	pc := pipeline.Config{
		Schedule: cfg.Pipeline.Schedule,
		Workers:  cfg.Pipeline.Workers,
		RetryMax: cfg.Pipeline.RetryMax,
	}
	var err error
	if pc.DeliverTimeout, err = config.ParseDurationOrDefault("pipeline.deliver_timeout", cfg.Pipeline.DeliverTimeout, 30*time.Second); err != nil {
		return pc, err
	}
	if pc.RetryBase, err = config.ParseDurationOrDefault("pipeline.retry_base", cfg.Pipeline.RetryBase, 500*time.Millisecond); err != nil {
		return pc, err
	}
	if pc.RetryMaxDelay, err = config.ParseDurationOrDefault("pipeline.retry_max_delay", cfg.Pipeline.RetryMaxDelay, 10*time.Second); err != nil {
		return pc, err
	}
	// "0s" disables the sweeper; only an omitted field gets the default.
	sweep, err := config.ParseDurationField("dedup.sweep_interval", cfg.Dedup.SweepInterval)
	if err != nil {
		return pc, err
	}
	if strings.TrimSpace(cfg.Dedup.SweepInterval) == "" {
		sweep = time.Hour
	}
	pc.SweepInterval = sweep
	return pc, nil
}

// Start brings the wired services up under one supervisor: websocket readers
// first, then the pipeline schedule, then the config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	for _, ws := range a.ws {
		ws.Start(a.sup.Context())
	}
	if err := a.pipe.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("config.reload", a.reloadLoop)
	a.log.Info("started")
	return nil
}

// reloadLoop applies the hot-reloadable subset of a changed config: logging
// sinks and level, dedup TTL and window, and the telegram send rate. The
// storage driver, delivery channel and source list need a restart.
func (a *App) reloadLoop(ctx context.Context) error {
	ch := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.ConsoleEnabled(),
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			if cfg.Dedup.SeenTTLDays > 0 {
				a.seen.SetTTL(time.Duration(cfg.Dedup.SeenTTLDays) * 24 * time.Hour)
			}
			if cfg.Dedup.BucketMinutes > 0 {
				a.buckets.SetWindow(time.Duration(cfg.Dedup.BucketMinutes) * time.Minute)
			}
			if a.tg != nil {
				a.tg.SetRate(cfg.Deliver.Telegram.RatePerSec)
			}
			a.log.Info("config reloaded; tunables applied")
		}
	}
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.FirstErr()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.sup.Cancel()
	}

	err := a.pipe.Stop(ctx)
	if a.sup != nil {
		if werr := a.sup.Wait(ctx); err == nil {
			err = werr
		}
	}
	if a.store != nil {
		if cerr := a.store.Close(); err == nil {
			err = cerr
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
