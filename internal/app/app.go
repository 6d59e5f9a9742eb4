// Package app wires configuration, logging, transport, storage, and the
// relay pipeline into one process and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/unk-user/upwork-sniper/internal/config"
	"github.com/unk-user/upwork-sniper/internal/eventbus"
	"github.com/unk-user/upwork-sniper/internal/ingest"
	"github.com/unk-user/upwork-sniper/internal/notify"
	"github.com/unk-user/upwork-sniper/internal/relay"
	rtsup "github.com/unk-user/upwork-sniper/internal/runtime/supervisor"
	"github.com/unk-user/upwork-sniper/internal/storage"
	kit "github.com/unk-user/upwork-sniper/internal/transport"
	telegram "github.com/unk-user/upwork-sniper/internal/transport/telegram"
	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter *telegram.Adapter
	notif   *notify.Service
	relay   *relay.Service
	ingest  *ingest.Server
	cron    *cron.Cron

	dedupWindow time.Duration

	updates chan kit.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storage.Config{
		Path:        cfg.Feeds.Path,
		BusyTimeout: 5 * time.Second,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	notif := notify.New(notify.Config{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		RatePerSec: cfg.Notify.RatePerSec,
	}, adapter, logSvc.Logger().With(logx.String("comp", "notify")), bus)

	cooldown, err := config.ParseDurationField("limits.command_cooldown", cfg.Limits.CommandCooldown)
	if err != nil {
		return nil, err
	}
	relaySvc := relay.New(relay.Config{
		FeedCap:         cfg.Feeds.Max,
		CommandCooldown: cooldown,
	}, store, adapter, notif, logSvc.Logger().With(logx.String("comp", "relay")), bus)

	ingestSrv := ingest.New(ingest.Config{
		Addr:   cfg.Ingest.Addr,
		Secret: cfg.Ingest.Secret,
	}, relaySvc, logSvc.Logger().With(logx.String("comp", "ingest")))

	dedupWindow, err := config.ParseDurationField("dedup.window", cfg.Dedup.Window)
	if err != nil {
		return nil, err
	}
	if dedupWindow > 0 {
		if _, err := cron.ParseStandard(cfg.Dedup.Sweep); err != nil {
			return nil, fmt.Errorf("dedup.sweep: invalid cron spec %q: %w", cfg.Dedup.Sweep, err)
		}
	}

	return &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		bus:         bus,
		store:       store,
		adapter:     adapter,
		notif:       notif,
		relay:       relaySvc,
		ingest:      ingestSrv,
		dedupWindow: dedupWindow,
		updates:     make(chan kit.Message, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error
// or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(cfg *config.Config) error {
		window, err := config.ParseDurationField("dedup.window", cfg.Dedup.Window)
		if err != nil {
			return err
		}
		if window > 0 {
			if _, err := cron.ParseStandard(cfg.Dedup.Sweep); err != nil {
				return fmt.Errorf("dedup.sweep: invalid cron spec %q: %w", cfg.Dedup.Sweep, err)
			}
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	if err := a.ingest.Start(a.sup.Context()); err != nil {
		return err
	}

	// Optional windowed dedup eviction. Off by default: the seen-uid set
	// never forgets unless dedup.window is configured.
	if a.dedupWindow > 0 {
		cfg := a.cfgm.Get()
		c := cron.New()
		window := a.dedupWindow
		if _, err := c.AddFunc(cfg.Dedup.Sweep, func() {
			if n := a.relay.Dedup().Sweep(window); n > 0 {
				a.log.Debug("dedup sweep", logx.Int("evicted", n), logx.Int("remaining", a.relay.Dedup().Len()))
			}
		}); err != nil {
			return err
		}
		c.Start()
		a.cron = c
		a.log.Info("dedup sweep enabled", logx.Duration("window", window), logx.String("spec", cfg.Dedup.Sweep))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.relay.DispatchLoop(c, a.updates)
	})

	// Log pipeline events for observability/debug.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	// Config hot reload fan-out.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyReload(prev, next *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.Console,
		File: logx.FileConfig{
			Enabled: next.Logging.File.Enabled,
			Path:    next.Logging.File.Path,
		},
	})
	a.notif.Apply(notify.Config{
		Workers:    next.Notify.Workers,
		QueueSize:  next.Notify.QueueSize,
		RatePerSec: next.Notify.RatePerSec,
	})

	if prev != nil {
		if prev.Telegram != next.Telegram || prev.Ingest != next.Ingest ||
			prev.Feeds != next.Feeds || prev.Dedup != next.Dedup {
			a.log.Warn("telegram/ingest/feeds/dedup config changed; restart required for changes to take effect")
		}
	}
	a.log.Info("config reloaded",
		logx.String("level", next.Logging.Level),
		logx.Bool("console", next.Logging.Console),
	)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Run a shutdown step with an upper bound so one component can't stall
	// the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// Stop intake first and drain the outbound queue while the run context
	// is still live; notify workers bail on a canceled context, so Cancel
	// must come after the drain.
	step("ingest", 2*time.Second, func(c context.Context) error { return a.ingest.Stop(c) })
	if a.cron != nil {
		step("cron", time.Second, func(c context.Context) error {
			stopCtx := a.cron.Stop()
			select {
			case <-stopCtx.Done():
			case <-c.Done():
			}
			return nil
		})
	}
	step("notify", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.sup.Cancel()

	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", time.Second, func(c context.Context) error { return a.store.Close() })
	a.log.Debug("waiting for supervised goroutines", logx.Int64("active", a.sup.Active()))
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
