// Package app assembles the bot: config, logging, storage, the timer
// service, the chat adapter, plugins, and maintenance, with ordered startup
// and teardown.
package app

import (
	"context"
	"fmt"
	"time"

	"tickbot/internal/config"
	"tickbot/internal/core"
	"tickbot/internal/eventbus"
	"tickbot/internal/plugin"
	"tickbot/internal/runtime/supervisor"
	"tickbot/internal/services/maintenance"
	"tickbot/internal/storage"
	"tickbot/internal/timers"
	"tickbot/internal/transport"
	"tickbot/internal/transport/telegram"
	"tickbot/plugins/modaction"
	"tickbot/plugins/reminder"
	"tickbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	bus     eventbus.Bus
	timers  *timers.Service
	adapter transport.Adapter
	cmdm    *core.Manager
	plugins *plugin.Manager
	maint   *maintenance.Service

	sup *supervisor.Supervisor
}

// New loads and validates config, initializes logging, and constructs every
// component without starting any of them.
func New(configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{cfgm: cfgm, logs: logs, log: log}
	if err := a.build(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return fmt.Errorf("open timer store: %w", err)
	}
	a.store = store
	a.bus = eventbus.New()

	handlerTimeout, err := config.ParseDurationField("timers.handler_timeout", cfg.Timers.HandlerTimeout, 30*time.Second)
	if err != nil {
		return err
	}
	maxWait, err := config.ParseDurationField("timers.max_wait", cfg.Timers.MaxWait, 40*24*time.Hour)
	if err != nil {
		return err
	}
	a.timers = timers.New(timers.Config{
		HandlerTimeout: handlerTimeout,
		MaxWait:        maxWait,
	}, store, a.log.With(logx.String("comp", "timers")), a.bus)

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		PollTimeout:    pollTimeout,
		SendRatePerSec: float64(cfg.Telegram.SendRatePerSec),
	}, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter

	a.cmdm = core.NewManager(
		a.log.With(logx.String("comp", "commands")),
		a.adapter,
		cfg.Telegram.OwnerUserIDs,
	)

	a.plugins = plugin.NewManager(
		a.log.With(logx.String("comp", "plugins")),
		plugin.Deps{
			Logger:  a.log,
			Adapter: a.adapter,
			Timers:  a.timers,
			Bus:     a.bus,
			Store:   a.store,
			Owners:  cfg.Telegram.OwnerUserIDs,
		},
		a.cmdm,
	)
	a.plugins.Register(reminder.New())
	a.plugins.Register(modaction.New())

	if cfg.Maintenance.Enabled {
		retention, err := config.ParseDurationField("maintenance.audit_retention", cfg.Maintenance.AuditRetention, 30*24*time.Hour)
		if err != nil {
			return err
		}
		a.maint = maintenance.New(maintenance.Config{
			AuditRetention: retention,
			CheckpointSpec: cfg.Maintenance.CheckpointSpec,
		}, store, a.log.With(logx.String("comp", "maintenance")))
	}
	return nil
}

// Start brings the components up in dependency order. Plugins init before
// the timer dispatch loop starts so every persisted timer finds its handler.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	if err := a.plugins.InitAll(ctx, cfg); err != nil {
		return err
	}
	if err := a.timers.Start(ctx); err != nil {
		return err
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "app"))))

	updates := make(chan transport.Update, 128)
	if err := a.adapter.Start(a.sup.Context(), updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	a.sup.Go("commands.dispatch", func(ctx context.Context) error {
		return a.cmdm.DispatchLoop(ctx, updates)
	})

	if a.maint != nil {
		if err := a.maint.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.fanout", a.watchConfig)

	a.log.Info("bot started")
	return nil
}

// watchConfig applies hot-reloadable settings from config updates.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)
			a.log.Info("config reloaded")
		}
	}
}

// Stop tears down in reverse order: stop taking input, stop firing timers,
// stop plugins, then close the store.
func (a *App) Stop(ctx context.Context) error {
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}
	if a.sup != nil {
		a.sup.Cancel()
		_ = a.sup.Wait(ctx)
	}
	if a.maint != nil {
		_ = a.maint.Stop(ctx)
	}
	if a.timers != nil {
		_ = a.timers.Stop(ctx)
	}
	if a.plugins != nil {
		a.plugins.StopAll(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("bot stopped")
	return a.logs.Close()
}
