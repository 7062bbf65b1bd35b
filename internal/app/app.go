package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"rosterbot/internal/commands"
	"rosterbot/internal/config"
	"rosterbot/internal/health"
	"rosterbot/internal/maintenance"
	"rosterbot/internal/reconcile"
	"rosterbot/internal/roster"
	"rosterbot/internal/scheduler"
	"rosterbot/internal/source"
	"rosterbot/internal/source/sheets"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	telegram "rosterbot/internal/transport/telegram/adapter"
	logx "rosterbot/pkg/logx"
)

type App struct {
	cfgPath string
	version string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter *telegram.Adapter
	fetch   source.Fetcher
	rec     *reconcile.Reconciler

	sched      *scheduler.Service
	dispatcher *commands.Dispatcher
	health     *health.Service
	janitor    *maintenance.Janitor

	loc *time.Location

	updates chan kit.Update
}

func NewApp(cfgPath, version string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping
	// Important: logx.New() calls Apply() immediately. If Telegram logging is
	// enabled but the target chat isn't configured yet, Apply() would warn.
	// Bootstrap with Telegram logging disabled, set the target, then Apply()
	// the final config.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false, // set target first, then enable via Apply()
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	if strings.TrimSpace(cfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64); err == nil {
			logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
		}
	}
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	loc, err := mapLocation(cfg)
	if err != nil {
		return nil, err
	}

	// Storage is always on: restart recovery depends on it.
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage enabled", logx.String("driver", sc.Driver))

	// Chat targets
	rosterChatID, err := ad.ResolveChat(cfg.Telegram.RosterChat)
	if err != nil {
		return nil, fmt.Errorf("telegram.roster_chat: %w", err)
	}
	rosterTarget := kit.ChatTarget{ChatID: rosterChatID, ThreadID: cfg.Telegram.RosterThreadID}

	var announceTarget kit.ChatTarget
	if strings.TrimSpace(cfg.Telegram.AnnounceChat) != "" {
		id, err := ad.ResolveChat(cfg.Telegram.AnnounceChat)
		if err != nil {
			return nil, fmt.Errorf("telegram.announce_chat: %w", err)
		}
		announceTarget = kit.ChatTarget{ChatID: id}
	} else {
		announceTarget = rosterTarget
	}

	// Domain services
	sheetsCfg, err := mapSheetsConfig(cfg)
	if err != nil {
		return nil, err
	}
	fetch, err := sheets.New(sheetsCfg, log.With(logx.String("comp", "sheets")))
	if err != nil {
		return nil, err
	}

	rend := roster.NewRenderer(cfg.Roster.Title, cfg.Roster.Footer)
	rec := reconcile.New(ad, store, rend, rosterTarget, log.With(logx.String("comp", "reconcile")))

	cadCfg, err := mapCadenceConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, fetch, store, rec, roster.NewPolicy(cadCfg), loc,
		log.With(logx.String("comp", "scheduler")))

	dispatcher := commands.New(log.With(logx.String("comp", "commands")), commands.Deps{
		Messenger:      ad,
		Scheduler:      sched,
		Store:          store,
		AnnounceTarget: announceTarget,
		Version:        version,
		StartedAt:      time.Now(),
		Location:       loc,
	}, cfg.Telegram.OwnerUserIDs)

	healthCfg, err := mapHealthConfig(cfg)
	if err != nil {
		return nil, err
	}
	healthSvc := health.New(healthCfg, version, sched.Status, log.With(logx.String("comp", "health")))

	janitor := maintenance.New(maintenance.Config{
		Enabled:   cfg.Maintenance.Enabled,
		PruneSpec: cfg.Maintenance.PruneSpec,
	}, store, loc, log.With(logx.String("comp", "maintenance")))

	return &App{
		cfgPath:    cfgPath,
		version:    version,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		store:      store,
		adapter:    ad,
		fetch:      fetch,
		rec:        rec,
		sched:      sched,
		dispatcher: dispatcher,
		health:     healthSvc,
		janitor:    janitor,
		loc:        loc,
		updates:    make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSheetsConfig(cfg); err != nil {
			return err
		}
		if _, err := mapHealthConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, err := mapLocation(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	// Recover the posted message before the loop starts so the first cycle
	// edits instead of double-posting.
	bctx, cancel := context.WithTimeout(a.sup.Context(), 30*time.Second)
	if err := a.rec.Bootstrap(bctx); err != nil {
		a.log.Warn("bootstrap recovery failed; first cycle may post fresh", logx.Err(err))
	}
	cancel()

	if err := a.sched.Start(a.sup.Context()); err != nil {
		return err
	}
	if a.health.Enabled() {
		a.health.Start(a.sup.Context())
	}
	if err := a.janitor.Start(); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.dispatcher.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out
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
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("version", a.version))
	return nil
}

// applyConfig pushes a hot-reloaded config into the running services.
// Sections that can't change live (storage driver, sheet source, telegram
// identity) only log a restart-required warning.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *Config) {
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		switch s {
		case "storage", "sheets":
			a.log.Warn("config section changed; restart required for changes to take effect",
				logx.String("section", s))
		}
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	if strings.TrimSpace(newCfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(newCfg.Telegram.GroupLog), 10, 64); err == nil {
			a.logs.SetTelegramTarget(chatID, newCfg.Logging.Telegram.ThreadID)
		}
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}

	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    newCfg.Logging.Telegram.Enabled,
			ThreadID:   newCfg.Logging.Telegram.ThreadID,
			MinLevel:   newCfg.Logging.Telegram.MinLevel,
			RatePerSec: newCfg.Logging.Telegram.RatePerSec,
		},
	})

	a.dispatcher.SetOwners(newCfg.Telegram.OwnerUserIDs)

	// Cadence and per-cycle bounds apply live.
	loc, err := mapLocation(newCfg)
	if err != nil {
		a.log.Warn("invalid roster.timezone; keeping previous", logx.Err(err))
		loc = a.loc
	}
	cadCfg, cadErr := mapCadenceConfig(newCfg, loc)
	schedCfg, schedErr := mapSchedulerConfig(newCfg)
	if cadErr != nil || schedErr != nil {
		err := cadErr
		if err == nil {
			err = schedErr
		}
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Reconfigure(schedCfg, roster.NewPolicy(cadCfg))
	}

	if hc, err := mapHealthConfig(newCfg); err != nil {
		a.log.Warn("invalid health config; keeping previous", logx.Err(err))
	} else {
		a.health.Reconfigure(ctx, hc)
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't
	// stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 3*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("janitor", 1*time.Second, func(c context.Context) error { a.janitor.Stop(c); return nil })
	step("health", 1*time.Second, func(c context.Context) error { a.health.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
