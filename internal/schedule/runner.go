package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "newsrelay/pkg/logx"
)

// Job is one scheduled pipeline run.
type Job func(ctx context.Context) error

// Config controls the trigger. Spec defaults to every two hours.
type Config struct {
	Spec       string
	Timezone   string
	RunOnStart bool
}

const DefaultSpec = "0 */2 * * *"

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner triggers a Job on a cron or interval schedule. Runs never overlap: a
// trigger that fires while the previous run is still going is skipped.
type Runner struct {
	job Job
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	parsed  Parsed
	c       *cron.Cron
	entry   cron.EntryID
	wrapped cron.Job

	// jobs tracks every started run, including run_on_start and runs fired
	// by a cron instance that Apply already replaced.
	jobs     sync.WaitGroup
	stopping bool
}

// New validates cfg and returns a stopped Runner.
func New(cfg Config, job Job, log logx.Logger) (*Runner, error) {
	if job == nil {
		return nil, fmt.Errorf("schedule: job is nil")
	}
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = DefaultSpec
	}
	p, err := Validate(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{job: job, log: log, cfg: cfg, parsed: p}, nil
}

// Validate parses cfg.Spec and checks the timezone and cron syntax.
func Validate(cfg Config) (Parsed, error) {
	p, err := Parse(cfg.Spec)
	if err != nil {
		return Parsed{}, err
	}
	if p.Kind == KindCron {
		if _, err := parser.Parse(p.Cron); err != nil {
			return Parsed{}, fmt.Errorf("invalid cron %q: %w", p.Cron, err)
		}
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return Parsed{}, err
	}
	return p, nil
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Run blocks until ctx is done, then waits for every in-flight job to return.
func (r *Runner) Run(ctx context.Context) error {
	clog := cronLogger{log: r.log}
	r.mu.Lock()
	if r.c != nil {
		r.mu.Unlock()
		return fmt.Errorf("schedule: already running")
	}
	r.stopping = false
	inner := cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() {
		r.runOnce(ctx)
	}))
	r.wrapped = cron.FuncJob(func() {
		if !r.track() {
			return
		}
		defer r.jobs.Done()
		inner.Run()
	})
	if err := r.startLocked(); err != nil {
		r.mu.Unlock()
		return err
	}
	runOnStart := r.cfg.RunOnStart
	wrapped := r.wrapped
	r.mu.Unlock()

	if runOnStart {
		go wrapped.Run()
	}

	<-ctx.Done()

	start := time.Now()
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.stopping = true
	r.mu.Unlock()
	<-c.Stop().Done()
	r.jobs.Wait()
	r.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
	return nil
}

// track registers a starting job. It refuses once Run is shutting down so
// Add never races Wait.
func (r *Runner) track() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return false
	}
	r.jobs.Add(1)
	return true
}

func (r *Runner) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := r.job(ctx); err != nil {
		r.log.Error("scheduled run failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	if next := r.Next(); !next.IsZero() {
		r.log.Info("next run scheduled", logx.Time("at", next))
	}
}

// Apply swaps the schedule. Takes effect immediately when running.
func (r *Runner) Apply(cfg Config) error {
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = DefaultSpec
	}
	p, err := Validate(cfg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.Spec == cfg.Spec && r.cfg.Timezone == cfg.Timezone {
		r.cfg = cfg
		return nil
	}
	r.cfg = cfg
	r.parsed = p
	if r.c == nil {
		return nil
	}
	old := r.c
	r.c = nil
	// Stopping cron does not interrupt a running job; SkipIfStillRunning
	// keeps the new trigger from overlapping it and Run waits for it on exit.
	old.Stop()
	return r.startLocked()
}

// startLocked builds and starts cron for r.cfg. Call with r.mu held.
func (r *Runner) startLocked() error {
	loc, err := loadLocation(r.cfg.Timezone)
	if err != nil {
		return err
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc), cron.WithLogger(cronLogger{log: r.log}))
	switch r.parsed.Kind {
	case KindInterval:
		r.entry = c.Schedule(cron.Every(r.parsed.Every), r.wrapped)
	default:
		id, err := c.AddJob(r.parsed.Cron, r.wrapped)
		if err != nil {
			return fmt.Errorf("schedule %q: %w", r.parsed.Cron, err)
		}
		r.entry = id
	}
	c.Start()
	r.c = c
	r.log.Info("scheduler started",
		logx.String("schedule", r.parsed.String()),
		logx.String("kind", r.parsed.Kind.String()),
		logx.String("tz", loc.String()),
	)
	return nil
}

// Next returns the next trigger time, or zero when stopped.
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return time.Time{}
	}
	return r.c.Entry(r.entry).Next
}

// cronLogger routes robfig/cron's logr-style output into logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
