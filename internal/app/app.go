package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"newsrelay/internal/config"
	"newsrelay/internal/dispatch"
	"newsrelay/internal/format"
	"newsrelay/internal/ledger"
	"newsrelay/internal/pipeline"
	"newsrelay/internal/runtime/supervisor"
	"newsrelay/internal/schedule"
	"newsrelay/internal/sources"
	"newsrelay/internal/transport"
	"newsrelay/internal/transport/telegram"
	logx "newsrelay/pkg/logx"
)

// Options adjust how the app is wired.
type Options struct {
	// DryRun posts to the log instead of Telegram and works on an in-memory
	// copy of the ledger.
	DryRun bool
	// LogLevel overrides logging.level when set.
	LogLevel string
	// Sleeper replaces the dispatcher's timer (tests).
	Sleeper dispatch.Sleeper
}

// App owns the long-lived pieces (logging, ledger, channel) and builds a fresh
// pipeline from the current config for every run.
type App struct {
	cfgm *config.Manager
	opts Options

	log  logx.Logger
	logs *logx.Service

	store   ledger.Ledger
	ledger  ledger.Ledger
	channel transport.Channel
}

// New loads the config and opens the ledger and the delivery channel.
func New(ctx context.Context, cfgm *config.Manager, opts Options) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgm.Path(), err)
	}
	if err := validate(cfg, !opts.DryRun); err != nil {
		return nil, err
	}

	logs, log := logx.New(logConfig(cfg, opts))
	a := &App{cfgm: cfgm, opts: opts, logs: logs, log: log.With(logx.String("comp", "app"))}

	store, err := OpenLedger(cfg, log.With(logx.String("comp", "ledger")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.store = store
	a.ledger = store

	if opts.DryRun {
		snap, err := ledger.Snapshot(ctx, store)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("dry run: %w", err)
		}
		a.ledger = snap
		a.channel = &transport.LogChannel{Log: log.With(logx.String("comp", "dryrun"))}
		a.log.Info("dry run: nothing will be posted or recorded")
		return a, nil
	}

	tc, err := mapTelegramConfig(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	ch, err := telegram.New(tc, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	a.channel = ch
	return a, nil
}

// OpenLedger maps the ledger section and opens the backend.
func OpenLedger(cfg *config.Config, log logx.Logger) (ledger.Ledger, error) {
	lc, err := mapLedgerConfig(cfg)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(lc, log)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	log.Debug("ledger opened", logx.String("driver", lc.Driver), logx.String("path", lc.Path))
	return l, nil
}

func logConfig(cfg *config.Config, opts Options) logx.Config {
	lc := mapLogConfig(cfg)
	if s := strings.TrimSpace(opts.LogLevel); s != "" {
		lc.Level = s
	}
	return lc
}

func (a *App) Logger() logx.Logger { return a.log }

// Ledger is the ledger runs work against (a snapshot in dry-run mode).
func (a *App) Ledger() ledger.Ledger { return a.ledger }

// Pipeline builds an orchestrator from cfg.
func (a *App) Pipeline(cfg *config.Config) (*pipeline.Orchestrator, error) {
	fc, err := mapFetcherConfig(cfg)
	if err != nil {
		return nil, err
	}
	fc.Log = a.log.With(logx.String("comp", "sources"))
	fetcher := sources.NewFetcher(fc)

	specs := mapSources(cfg)
	entries := make([]sources.Entry, 0, len(specs))
	for i, spec := range specs {
		src, err := sources.Build(spec, fetcher)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		entries = append(entries, sources.Entry{Source: src, Limit: spec.Limit})
	}
	col := sources.NewCollector(entries, cfg.Collect.Concurrency, a.log.With(logx.String("comp", "sources")))

	dc, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	var dopts []dispatch.Option
	if a.opts.Sleeper != nil {
		dopts = append(dopts, dispatch.WithSleeper(a.opts.Sleeper))
	}
	d := dispatch.New(dc, a.ledger, a.channel, format.Formatter{Footer: cfg.Telegram.Footer},
		a.log.With(logx.String("comp", "dispatch")), dopts...)

	return pipeline.New(a.ledger, col, d, a.log.With(logx.String("comp", "pipeline")), pipeline.DryRun(a.opts.DryRun)), nil
}

// RunOnce performs one pipeline run with the current config.
func (a *App) RunOnce(ctx context.Context) (pipeline.Stats, error) {
	o, err := a.Pipeline(a.cfgm.Get())
	if err != nil {
		return pipeline.Stats{}, err
	}
	return o.Run(ctx)
}

// Serve runs the pipeline on the configured schedule until ctx is done,
// reloading the config file as it changes.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.cfgm.Get()
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	runner, err := schedule.New(mapScheduleConfig(cfg), func(ctx context.Context) error {
		_, err := a.RunOnce(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}, a.log.With(logx.String("comp", "schedule")))
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validate(c, !a.opts.DryRun)
	})

	sub := a.cfgm.Subscribe(4)
	sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := cfg
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.apply(last, next, runner)
				last = next
			}
		}
	})
	sup.GoRestart("config.watch", time.Second, 30*time.Second, a.cfgm.Watch)
	sup.Go("schedule", runner.Run)

	sdNotify(a.log, sdReady)
	a.log.Info("serving", logx.String("config", a.cfgm.Path()))

	<-sup.Context().Done()
	sdNotify(a.log, sdStopping)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return sup.Stop(stopCtx)
}

// apply pushes a reloaded config into the long-lived components. Sources,
// dispatch and formatting are rebuilt per run and need nothing here.
func (a *App) apply(prev, next *config.Config, runner *schedule.Runner) {
	changed, _ := config.SummarizeChange(prev, next)
	if slices.Contains(changed, "logging") || prev.Telegram.Token != next.Telegram.Token {
		if err := a.logs.Apply(logConfig(next, a.opts)); err != nil {
			a.log.Warn("log file sink disabled", logx.Err(err))
		}
	}
	if slices.Contains(changed, "schedule") {
		if err := runner.Apply(mapScheduleConfig(next)); err != nil {
			a.log.Warn("invalid schedule; keeping previous", logx.Err(err))
		}
	}
	if slices.Contains(changed, "ledger") {
		a.log.Warn("ledger config changed; restart required")
	}
	pt, nt := prev.Telegram, next.Telegram
	if pt.Token != nt.Token || pt.Channel != nt.Channel || pt.SendTimeout != nt.SendTimeout || pt.DisablePreview != nt.DisablePreview {
		a.log.Warn("telegram connection settings changed; restart required")
	}
}

// Close releases the ledger and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
