package sources

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"newsrelay/internal/feed"
	logx "newsrelay/pkg/logx"
)

// Entry binds a source to its per-run item limit.
type Entry struct {
	Source Source
	Limit  int
}

// SourceError records a source that failed during collection.
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string { return e.Source + ": " + e.Err.Error() }

func (e SourceError) Unwrap() error { return e.Err }

// Collection is the outcome of one collection pass.
// Batches follow the configured source order; a failed source has a nil batch.
type Collection struct {
	Batches [][]feed.Item
	Errors  []SourceError
	Took    time.Duration
}

// Total is the number of candidate items before merging.
func (c Collection) Total() int { return feed.Count(c.Batches) }

// Collector fetches every configured source.
//
// Sources run concurrently (bounded by concurrency) but their batches are
// returned in configuration order, so merging stays deterministic.
type Collector struct {
	entries     []Entry
	concurrency int
	log         logx.Logger
}

func NewCollector(entries []Entry, concurrency int, log logx.Logger) *Collector {
	if concurrency <= 0 {
		concurrency = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Collector{entries: entries, concurrency: concurrency, log: log}
}

func (c *Collector) Len() int { return len(c.entries) }

// Collect never fails as a whole: per-source errors are logged and returned
// in Collection.Errors.
func (c *Collector) Collect(ctx context.Context, seen feed.Set) Collection {
	start := time.Now()
	batches := make([][]feed.Item, len(c.entries))
	errs := make([]error, len(c.entries))

	// Plain Group: one source failing must not cancel the others.
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, e := range c.entries {
		g.Go(func() error {
			batches[i], errs[i] = c.fetchOne(ctx, e, seen)
			return nil
		})
	}
	_ = g.Wait()

	out := Collection{Batches: batches}
	for i, err := range errs {
		if err == nil {
			continue
		}
		name := c.entries[i].Source.Name()
		out.Errors = append(out.Errors, SourceError{Source: name, Err: err})
		c.log.Warn("source failed", logx.String("source", name), logx.Err(err))
	}
	out.Took = time.Since(start)
	c.log.Info("collection finished",
		logx.Int("sources", len(c.entries)),
		logx.Int("items", out.Total()),
		logx.Int("failed_sources", len(out.Errors)),
		logx.Duration("took", out.Took),
	)
	return out
}

func (c *Collector) fetchOne(ctx context.Context, e Entry, seen feed.Set) (items []feed.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			items = nil
			err = fmt.Errorf("panic: %v", r)
			c.log.Error("source panicked", logx.String("source", e.Source.Name()), logx.String("stack", string(debug.Stack())))
		}
	}()
	start := time.Now()
	items, err = e.Source.Fetch(ctx, seen, limitOrDefault(e.Limit))
	if err != nil {
		return nil, err
	}
	c.log.Debug("source fetched",
		logx.String("source", e.Source.Name()),
		logx.Int("items", len(items)),
		logx.Duration("took", time.Since(start)),
	)
	return items, nil
}
