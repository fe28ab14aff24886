// Package dispatch delivers merged items to the channel one at a time.
//
// Each item goes Pending -> Delivering -> {Delivered, Skipped, Failed}:
//
//   - the ledger is re-read right before sending; a present link is Skipped
//   - Delivered: commit the link, then wait the pacing interval
//   - RateLimited(n): wait n+grace, retry exactly once; anything but success is Failed
//   - TimedOut: wait the recovery interval, Failed, no retry (the next run picks it up)
//   - PermanentFailure: Failed
//
// Sends are strictly sequential. A failing item never stops the items after it.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"newsrelay/internal/feed"
	"newsrelay/internal/transport"
	logx "newsrelay/pkg/logx"
)

type Dispatcher struct {
	cfg    Config
	ledger Ledger
	ch     transport.Channel
	format Formatter
	sleep  Sleeper
	log    logx.Logger

	observe func(Result)
}

type Option func(*Dispatcher)

// WithSleeper replaces the real timer (tests).
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.sleep = s
		}
	}
}

// WithObserver is called with every terminal result, in order.
func WithObserver(fn func(Result)) Option {
	return func(d *Dispatcher) { d.observe = fn }
}

func New(cfg Config, l Ledger, ch transport.Channel, f Formatter, log logx.Logger, opts ...Option) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{
		cfg:    cfg.withDefaults(),
		ledger: l,
		ch:     ch,
		format: f,
		sleep:  TimerSleeper,
		log:    log,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Config returns the effective configuration (defaults applied).
func (d *Dispatcher) Config() Config { return d.cfg }

// Run dispatches items in order. The returned error is non-nil only when ctx
// ends the pass early; the report then covers the items handled so far.
func (d *Dispatcher) Run(ctx context.Context, items []feed.Item) (Report, error) {
	var rep Report
	if len(items) == 0 {
		d.log.Info("nothing to send")
		return rep, nil
	}
	d.log.Info("dispatch started", logx.Int("items", len(items)))

	for i, it := range items {
		if err := ctx.Err(); err != nil {
			rep.Pending = len(items) - i
			return rep, err
		}
		res, err := d.dispatchOne(ctx, it)
		rep.add(res)
		if res.Outcome.Kind == transport.KindRateLimited || res.Attempts > 1 {
			rep.RateLimited++
		}
		if d.observe != nil {
			d.observe(res)
		}
		if err != nil {
			rep.Pending = len(items) - i - 1
			return rep, err
		}
	}

	d.log.Info("dispatch finished",
		logx.Int("delivered", rep.Delivered),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
	)
	return rep, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, it feed.Item) (Result, error) {
	res := Result{Item: it, State: StatePending}
	log := d.log.With(logx.String("link", it.ID()), logx.String("title", it.Title))

	present, err := d.ledger.Contains(ctx, it.ID())
	if err != nil {
		res.State = StateFailed
		res.Err = fmt.Errorf("ledger re-check: %w", err)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Error("ledger re-check failed; not sending", logx.Err(err))
		return res, nil
	}
	if present {
		res.State = StateSkipped
		log.Info("skipped: already delivered")
		return res, nil
	}

	text := d.format.Post(it)
	res.State = StateDelivering

	out := d.send(ctx, text, &res)
	switch out.Kind {
	case transport.KindDelivered:
		return d.delivered(ctx, res, log)

	case transport.KindRateLimited:
		wait := out.RetryAfter + d.cfg.RateLimitGrace
		log.Warn("flood control: waiting before retry", logx.Duration("wait", wait))
		if err := d.sleep.Sleep(ctx, wait); err != nil {
			res.State = StateFailed
			res.Err = err
			return res, err
		}
		out = d.send(ctx, text, &res)
		if out.OK() {
			log.Info("delivered after flood wait")
			return d.delivered(ctx, res, log)
		}
		res.State = StateFailed
		log.Error("retry after flood control failed", logx.String("outcome", out.String()))
		return res, nil

	case transport.KindTimedOut:
		res.State = StateFailed
		log.Warn("send timed out; deferring to next run", logx.Duration("recovery", d.cfg.TimeoutRecovery))
		if err := d.sleep.Sleep(ctx, d.cfg.TimeoutRecovery); err != nil {
			return res, err
		}
		return res, nil

	default:
		res.State = StateFailed
		log.Error("send failed", logx.String("reason", out.Reason()))
		return res, nil
	}
}

func (d *Dispatcher) send(ctx context.Context, text string, res *Result) transport.Outcome {
	res.Attempts++
	start := time.Now()
	out := d.ch.Send(ctx, text)
	res.Outcome = out
	d.log.Debug("send attempt",
		logx.String("link", res.Item.ID()),
		logx.Int("attempt", res.Attempts),
		logx.String("outcome", out.String()),
		logx.Duration("took", time.Since(start)),
	)
	return out
}

// delivered commits the link and applies the pacing cooldown.
// A commit error does not undo the send: the item may be posted again by a
// later run, which is the accepted at-least-once behaviour.
func (d *Dispatcher) delivered(ctx context.Context, res Result, log logx.Logger) (Result, error) {
	res.State = StateDelivered
	// The message is out; record it even if the run is being cancelled.
	inserted, err := d.ledger.TryCommit(context.WithoutCancel(ctx), res.Item.ID())
	if err != nil {
		res.Err = fmt.Errorf("ledger commit: %w", err)
		log.Error("delivered but commit failed", logx.Err(err))
	} else {
		res.Committed = inserted
		if !inserted {
			log.Warn("delivered but link was already committed")
		}
	}
	log.Info("delivered", logx.Int("attempts", res.Attempts))

	if err := d.sleep.Sleep(ctx, d.cfg.Pacing); err != nil {
		return res, err
	}
	return res, nil
}
