package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrelay/internal/dispatch"
	"newsrelay/internal/feed"
	"newsrelay/internal/ledger"
	"newsrelay/internal/sources"
	"newsrelay/internal/transport"
	logx "newsrelay/pkg/logx"
)

type staticSource struct {
	name  string
	items []feed.Item
	err   error
}

func (s staticSource) Name() string { return s.name }

func (s staticSource) Fetch(_ context.Context, seen feed.Set, limit int) ([]feed.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []feed.Item
	for _, it := range s.items {
		if len(out) >= limit {
			break
		}
		if !seen.Has(it.Link) {
			out = append(out, it)
		}
	}
	return out, nil
}

type recordingChannel struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]transport.Outcome
}

func (c *recordingChannel) Send(_ context.Context, text string) transport.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.fail[text]; ok {
		return o
	}
	c.texts = append(c.texts, text)
	return transport.Delivered(len(c.texts))
}

func (c *recordingChannel) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type linkFormatter struct{}

func (linkFormatter) Post(it feed.Item) string { return it.Link }

var noSleep = dispatch.SleeperFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() })

func newOrchestrator(l ledger.Ledger, ch transport.Channel, srcs ...sources.Source) *Orchestrator {
	entries := make([]sources.Entry, 0, len(srcs))
	for _, s := range srcs {
		entries = append(entries, sources.Entry{Source: s})
	}
	col := sources.NewCollector(entries, 2, logx.Nop())
	d := dispatch.New(dispatch.Config{}, l, ch, linkFormatter{}, logx.Nop(), dispatch.WithSleeper(noSleep))
	return New(l, col, d, logx.Nop())
}

func TestRunDeliversOnceAcrossRuns(t *testing.T) {
	l := ledger.NewMemory()
	ch := &recordingChannel{}
	src := staticSource{name: "blog", items: []feed.Item{{Title: "A", Link: "http://a"}}}

	st, err := newOrchestrator(l, ch, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Collected)
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, []string{"http://a"}, ch.sent())
	assert.Equal(t, []string{"http://a"}, l.Commits())

	st, err = newOrchestrator(l, ch, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.Collected)
	assert.Equal(t, 0, st.Delivered)
	assert.Len(t, ch.sent(), 1)

	runs, err := l.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 0, runs[0].Delivered)
	assert.Equal(t, 1, runs[1].Delivered)
}

func TestRunMergesDuplicatesAcrossSources(t *testing.T) {
	l := ledger.NewMemory("http://old")
	ch := &recordingChannel{}
	a := staticSource{name: "a", items: []feed.Item{{Link: "http://x", Title: "first"}, {Link: "http://old"}}}
	b := staticSource{name: "b", items: []feed.Item{{Link: "http://y"}, {Link: "http://x", Title: "second"}}}

	st, err := newOrchestrator(l, ch, a, b).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, st.Collected)
	assert.Equal(t, 2, st.Unique)
	assert.Equal(t, []string{"http://x", "http://y"}, ch.sent())
	assert.Equal(t, "second", st.Report.Results[0].Item.Title)
}

func TestRunSurvivesSourceErrors(t *testing.T) {
	l := ledger.NewMemory()
	ch := &recordingChannel{}
	broken := staticSource{name: "broken", err: errors.New("503")}
	ok := staticSource{name: "ok", items: []feed.Item{{Link: "http://b"}}}

	st, err := newOrchestrator(l, ch, broken, ok).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, st.SourceErrors, 1)
	assert.Equal(t, "broken", st.SourceErrors[0].Source)
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, 1, st.Record().SourceErrors)
}

func TestRunCountsFailures(t *testing.T) {
	l := ledger.NewMemory()
	ch := &recordingChannel{fail: map[string]transport.Outcome{
		"http://bad": transport.PermanentFailure(errors.New("chat not found")),
	}}
	src := staticSource{name: "s", items: []feed.Item{{Link: "http://bad"}, {Link: "http://good"}}}

	st, err := newOrchestrator(l, ch, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, []string{"http://good"}, l.Commits())
	assert.Contains(t, st.String(), "failed=1")
}

type brokenLedger struct {
	ledger.Ledger
	initErr error
	loadErr error
}

func (b brokenLedger) Initialize(context.Context) error { return b.initErr }

func (b brokenLedger) LoadAll(context.Context) (feed.Set, error) { return nil, b.loadErr }

type countingSource struct{ calls *int }

func (c countingSource) Name() string { return "counting" }

func (c countingSource) Fetch(context.Context, feed.Set, int) ([]feed.Item, error) {
	*c.calls++
	return nil, nil
}

func TestLedgerFailureAbortsBeforeCollection(t *testing.T) {
	for name, l := range map[string]brokenLedger{
		"initialize": {initErr: errors.New("disk full")},
		"load":       {loadErr: errors.New("corrupt")},
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			ch := &recordingChannel{}
			_, err := newOrchestrator(l, ch, countingSource{calls: &calls}).Run(context.Background())
			require.ErrorIs(t, err, ErrLedger)
			assert.Zero(t, calls)
			assert.Empty(t, ch.sent())
		})
	}
}

type cancellingChannel struct {
	cancel context.CancelFunc
	sends  int
}

func (c *cancellingChannel) Send(context.Context, string) transport.Outcome {
	c.sends++
	c.cancel()
	return transport.Delivered(c.sends)
}

func TestCancelledRunKeepsCommitsAndRecordsHistory(t *testing.T) {
	l := ledger.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := &cancellingChannel{cancel: cancel}
	src := staticSource{name: "s", items: []feed.Item{{Link: "http://1"}, {Link: "http://2"}}}

	st, err := newOrchestrator(l, ch, src).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, st.Delivered)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, []string{"http://1"}, l.Commits())

	runs, err := l.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Delivered)
}

func TestDryRunFlagIsRecorded(t *testing.T) {
	l := ledger.NewMemory()
	col := sources.NewCollector(nil, 1, logx.Nop())
	d := dispatch.New(dispatch.Config{}, l, &recordingChannel{}, linkFormatter{}, logx.Nop(), dispatch.WithSleeper(noSleep))
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := New(l, col, d, logx.Nop(), DryRun(true), WithClock(func() time.Time { return start }))

	st, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, st.DryRun)
	assert.Equal(t, start, st.StartedAt)

	runs, err := l.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, runs[0].DryRun)
}
