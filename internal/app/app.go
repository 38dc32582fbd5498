package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"chispitas/internal/audit"
	"chispitas/internal/bank"
	"chispitas/internal/checks"
	"chispitas/internal/config"
	"chispitas/internal/eventbus"
	"chispitas/internal/notifier"
	"chispitas/internal/reminder"
	"chispitas/internal/runtime/supervisor"
	"chispitas/internal/storage"
	"chispitas/internal/task/scheduler"
	"chispitas/internal/transport"
	"chispitas/internal/transport/telegram/adapter"
	"chispitas/internal/transport/telegram/router"
	"chispitas/pkg/logx"
)

const updatesBuffer = 256

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor
	jobs *jobRunner

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *adapter.Adapter

	reminders *reminder.Scheduler
	remFile   *storage.ReminderFile
	bank      *bank.Client
	sched     *scheduler.Service
	checks    *checks.Runner
	notif     *notifier.Service
	cmdm      *router.Manager
	audit     *audit.Recorder

	updates chan transport.Message
}

// jobRunner lets the scheduler be built before the supervisor exists.
// Jobs triggered before Start, or after Stop, are dropped.
type jobRunner struct {
	sup atomic.Pointer[supervisor.Supervisor]
}

func (r *jobRunner) Go(name string, fn func(ctx context.Context) error) {
	if sup := r.sup.Load(); sup != nil {
		sup.Go(name, fn)
	}
}

// New loads the configuration and builds every component. Nothing runs
// until Start.
func New(cfgPath string, secrets config.Secrets) (*App, error) {
	cfgm := config.NewManager(cfgPath, secrets)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := adapter.New(adCfg, log)
	if err != nil {
		return nil, err
	}
	logs.AttachSender(ad, cfg.Telegram.AdminChatID)

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	nCfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(nCfg, ad, log, bus, store)

	loc, err := config.LoadLocation("reminders.timezone", cfg.Reminders.Timezone)
	if err != nil {
		return nil, err
	}
	remFile := storage.NewReminderFile(cfg.Reminders.File, loc)
	rem := reminder.New(reminder.Options{Store: remFile, Sender: notif, Log: log, Bus: bus})

	bCfg, err := mapBankConfig(cfg)
	if err != nil {
		return nil, err
	}
	bk := bank.New(bCfg, nil, log)

	jobs := &jobRunner{}
	sched := scheduler.New(mapSchedulerConfig(cfg), jobs, log)

	cCfg, err := mapChecksConfig(cfg)
	if err != nil {
		return nil, err
	}
	chk := checks.New(cCfg, checks.Options{Bank: bk, Notifier: notif, Scheduler: sched, Log: log, Bus: bus})

	rCfg, err := mapRouterConfig(cfg)
	if err != nil {
		return nil, err
	}
	cmdm := router.New(rCfg, ad, log)
	cmdm.SetRegistry(router.Commands(router.Deps{
		Reminders:  rem,
		Bank:       bk,
		Payers:     chk,
		RentAmount: cfg.Checks.Rent.Threshold,
		Location:   loc,
	}))

	a := &App{
		cfgm:      cfgm,
		jobs:      jobs,
		log:       log.With(logx.String("comp", "app")),
		logs:      logs,
		bus:       bus,
		store:     store,
		adapter:   ad,
		reminders: rem,
		remFile:   remFile,
		bank:      bk,
		sched:     sched,
		checks:    chk,
		notif:     notif,
		cmdm:      cmdm,
		updates:   make(chan transport.Message, updatesBuffer),
	}
	if store != nil {
		a.audit = audit.NewRecorder(store, log)
	}
	return a, nil
}

// Logger is the application's root logger.
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app's run context ends, either through Stop or
// after a fatal goroutine error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err is the first fatal goroutine error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.jobs.sup.Store(a.sup)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateMapped(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// The notifier outlives the run context so Stop can drain it.
	a.notif.Start(context.WithoutCancel(ctx))

	a.sup.Go("reminders.loop", a.reminders.Run)
	if err := a.restoreReminders(a.sup.Context()); err != nil {
		a.log.Warn("reminder restore failed", logx.String("file", a.remFile.Path()), logx.Err(err))
	}

	a.sched.Start(a.sup.Context())
	if err := a.checks.Register(); err != nil {
		a.log.Warn("check registration incomplete", logx.Err(err))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		if err := a.adapter.UpdateMenuCommands(mctx, a.cmdm.MenuCommands()); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	if a.audit != nil {
		a.sup.Go("audit.record", func(c context.Context) error {
			return a.audit.Run(c, a.bus)
		})
	}

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("bot", a.adapter.Username()))
	return nil
}

func (a *App) restoreReminders(ctx context.Context) error {
	recs, skipped, err := a.remFile.Load(time.Now())
	if err != nil {
		return err
	}
	if skipped > 0 {
		a.log.Info("expired or invalid reminders skipped", logx.Int("skipped", skipped))
	}
	if len(recs) == 0 {
		return nil
	}
	_, err = a.reminders.Restore(ctx, recs)
	return err
}

// validateMapped rejects a reload that would fail to map onto a component.
func validateMapped(cfg *config.Config) error {
	var errs []error
	if _, err := mapAdapterConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapRouterConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapChecksConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Keep only the latest config of a burst.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			changes := config.Changes(lastApplied, newCfg)
			lastApplied = newCfg
			if len(changes) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.applyConfig(newCfg, changes)
			a.log.Info("config applied", logx.String("changed", strings.Join(changes, ",")))
		}
	}
}

// applyConfig pushes the changed sections to the running components.
// Sections that are only read at construction log a restart warning.
func (a *App) applyConfig(cfg *config.Config, changes []string) {
	if config.Has(changes, "telegram") || config.Has(changes, "logging") {
		a.logs.AttachSender(a.adapter, cfg.Telegram.AdminChatID)
		a.logs.Apply(mapLoggingConfig(cfg))
	}
	if config.Has(changes, "telegram") {
		if rc, err := mapRouterConfig(cfg); err == nil {
			a.cmdm.Apply(rc)
		}
	}
	if config.Has(changes, "notifier") {
		if nc, err := mapNotifierConfig(cfg); err == nil {
			a.notif.Apply(nc)
		}
	}
	if config.Has(changes, "checks") || config.Has(changes, "telegram") {
		a.sched.Apply(mapSchedulerConfig(cfg))
		if cc, err := mapChecksConfig(cfg); err == nil {
			if err := a.checks.Apply(cc); err != nil {
				a.log.Warn("check registration incomplete", logx.Err(err))
			}
		}
	}
	for _, section := range []string{"reminders", "bank", "storage"} {
		if config.Has(changes, section) {
			a.log.Warn("config changed; restart required for changes to take effect", logx.String("section", section))
		}
	}
}

// Stop cancels the run context and shuts components down in order, each
// step bounded by its own budget and the caller's deadline.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()
	a.jobs.sup.Store(nil)

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	// Waiting on the supervisor lets the reminder loop write its final save
	// and lets in-flight commands finish their replies.
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
