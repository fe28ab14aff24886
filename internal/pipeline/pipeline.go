package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsrelay/internal/dispatch"
	"newsrelay/internal/feed"
	"newsrelay/internal/ledger"
	"newsrelay/internal/sources"
	logx "newsrelay/pkg/logx"
)

// ErrLedger marks failures that abort a run before anything is collected.
var ErrLedger = errors.New("ledger unavailable")

// Collector fetches one batch per source, in configured order.
type Collector interface {
	Collect(ctx context.Context, seen feed.Set) sources.Collection
}

// Dispatcher delivers unique items.
type Dispatcher interface {
	Run(ctx context.Context, items []feed.Item) (dispatch.Report, error)
}

// Orchestrator sequences one run: ledger snapshot, collection, merge,
// dispatch and bookkeeping.
type Orchestrator struct {
	ledger   ledger.Ledger
	collect  Collector
	dispatch Dispatcher
	log      logx.Logger

	dryRun bool
	now    func() time.Time
}

type Option func(*Orchestrator)

// DryRun marks recorded runs as dry runs.
func DryRun(v bool) Option { return func(o *Orchestrator) { o.dryRun = v } }

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(l ledger.Ledger, c Collector, d Dispatcher, log logx.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{ledger: l, collect: c, dispatch: d, log: log, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stats summarizes a run.
type Stats struct {
	StartedAt    time.Time
	Elapsed      time.Duration
	Known        int
	Collected    int
	Unique       int
	Delivered    int
	Skipped      int
	Failed       int
	Pending      int
	SourceErrors []sources.SourceError
	Report       dispatch.Report
	DryRun       bool
}

func (s Stats) String() string {
	return fmt.Sprintf("collected=%d unique=%d delivered=%d skipped=%d failed=%d source_errors=%d elapsed=%s",
		s.Collected, s.Unique, s.Delivered, s.Skipped, s.Failed, len(s.SourceErrors), s.Elapsed.Round(time.Millisecond))
}

// Record converts the stats into a run history entry.
func (s Stats) Record() ledger.RunRecord {
	return ledger.RunRecord{
		StartedAt:    s.StartedAt,
		Took:         s.Elapsed,
		Collected:    s.Collected,
		Unique:       s.Unique,
		Delivered:    s.Delivered,
		Skipped:      s.Skipped,
		Failed:       s.Failed,
		SourceErrors: len(s.SourceErrors),
		DryRun:       s.DryRun,
	}
}

// Run performs one full pass. Source failures never abort the run; a ledger
// that cannot be initialized or read does, before any source is contacted.
// A cancelled ctx stops dispatch; links committed so far stay committed.
func (o *Orchestrator) Run(ctx context.Context) (Stats, error) {
	st := Stats{StartedAt: o.now(), DryRun: o.dryRun}
	log := o.log.With(logx.Bool("dry_run", o.dryRun))

	if err := o.ledger.Initialize(ctx); err != nil {
		return st, fmt.Errorf("%w: initialize: %w", ErrLedger, err)
	}
	seen, err := o.ledger.LoadAll(ctx)
	if err != nil {
		return st, fmt.Errorf("%w: load: %w", ErrLedger, err)
	}
	st.Known = seen.Len()
	log.Info("run started", logx.Int("known_links", st.Known))

	col := o.collect.Collect(ctx, seen)
	st.Collected = col.Total()
	st.SourceErrors = col.Errors

	items := feed.Merge(seen, col.Batches...)
	st.Unique = len(items)

	rep, derr := o.dispatch.Run(ctx, items)
	st.Report = rep
	st.Delivered = rep.Delivered
	st.Skipped = rep.Skipped
	st.Failed = rep.Failed
	st.Pending = rep.Pending
	st.Elapsed = o.now().Sub(st.StartedAt)

	o.record(ctx, st, log)

	fields := []logx.Field{
		logx.Int("collected", st.Collected),
		logx.Int("unique", st.Unique),
		logx.Int("delivered", st.Delivered),
		logx.Int("skipped", st.Skipped),
		logx.Int("failed", st.Failed),
		logx.Int("source_errors", len(st.SourceErrors)),
		logx.Duration("elapsed", st.Elapsed),
	}
	if derr != nil {
		log.Warn("run interrupted", append(fields, logx.Int("pending", st.Pending), logx.Err(derr))...)
		return st, derr
	}
	log.Info("run finished", fields...)
	return st, nil
}

// record appends the run to history even when ctx was cancelled mid-dispatch.
func (o *Orchestrator) record(ctx context.Context, st Stats, log logx.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.ledger.AppendRun(rctx, st.Record()); err != nil {
		log.Warn("run history not saved", logx.Err(err))
	}
}
