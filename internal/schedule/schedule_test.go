package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "newsrelay/pkg/logx"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		kind    Kind
		cron    string
		every   time.Duration
		source  string
		wantErr bool
	}{
		{raw: "0 */2 * * *", kind: KindCron, cron: "0 */2 * * *", source: "cron"},
		{raw: "@hourly", kind: KindCron, cron: "@hourly", source: "cron"},
		{raw: "CRON: 5 4 * * *", kind: KindCron, cron: "5 4 * * *", source: "cron"},
		{raw: "30m", kind: KindInterval, every: 30 * time.Minute, source: "duration"},
		{raw: "02:30", kind: KindInterval, every: 2*time.Hour + 30*time.Minute, source: "hhmm"},
		{raw: "every: 90s", kind: KindInterval, every: 90 * time.Second, source: "duration"},
		{raw: "interval:01:00", kind: KindInterval, every: time.Hour, source: "hhmm"},
		{raw: "every:30m", kind: KindInterval, every: 30 * time.Minute, source: "duration"},
		{raw: "01:30", kind: KindInterval, every: 90 * time.Minute, source: "hhmm"},
		{raw: "", wantErr: true},
		{raw: "cron:", wantErr: true},
		{raw: "00:00", wantErr: true},
		{raw: "01:75", wantErr: true},
		{raw: "-5m", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p, err := Parse(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.cron, p.Cron)
			assert.Equal(t, tt.every, p.Every)
			assert.Equal(t, tt.source, p.Source)
		})
	}
}

func TestValidate(t *testing.T) {
	_, err := Validate(Config{Spec: "61 * * * *"})
	assert.Error(t, err)

	_, err = Validate(Config{Spec: "1h", Timezone: "Nowhere/Land"})
	assert.Error(t, err)

	p, err := Validate(Config{Spec: "0 8 * * *", Timezone: "Asia/Jakarta"})
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * *", p.String())
}

func TestNewDefaultsSpec(t *testing.T) {
	r, err := New(Config{}, func(context.Context) error { return nil }, logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, r.parsed.Cron)

	_, err = New(Config{}, nil, logx.Nop())
	assert.Error(t, err)
}

func TestRunOnStartAndInterval(t *testing.T) {
	var runs atomic.Int32
	r, err := New(Config{Spec: "1s", RunOnStart: true}, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("source down")
	}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 3*time.Second, 50*time.Millisecond)
	assert.False(t, r.Next().IsZero())

	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.Next().IsZero())
}

func TestRunsNeverOverlap(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	release := make(chan struct{})
	r, err := New(Config{Spec: "1s", RunOnStart: true}, func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		runs.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Let a couple of ticks fire while the first run is blocked.
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int32(1), maxActive.Load())

	close(release)
	cancel()
	require.NoError(t, <-done)
}

func TestApplySwapsSchedule(t *testing.T) {
	r, err := New(Config{Spec: "1h"}, func(context.Context) error { return nil }, logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	require.Eventually(t, func() bool { return !r.Next().IsZero() }, time.Second, 10*time.Millisecond)
	first := r.Next()

	assert.Error(t, r.Apply(Config{Spec: "bogus"}))
	require.NoError(t, r.Apply(Config{Spec: "2h"}))
	require.Eventually(t, func() bool { return r.Next().After(first.Add(30 * time.Minute)) }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// slowJob blocks until the run is cancelled and then keeps working briefly,
// like a dispatcher committing its last delivery.
func slowJob(started chan<- struct{}, finished *atomic.Bool) Job {
	return func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}
}

func TestRunWaitsForRunOnStartJob(t *testing.T) {
	started := make(chan struct{}, 1)
	var finished atomic.Bool
	r, err := New(Config{Spec: "1h", RunOnStart: true}, slowJob(started, &finished), logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("run_on_start job did not start")
	}
	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load(), "Run returned while a job was still running")
}

func TestRunWaitsForJobOfReplacedSchedule(t *testing.T) {
	started := make(chan struct{}, 1)
	var finished atomic.Bool
	r, err := New(Config{Spec: "1s"}, slowJob(started, &finished), logx.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("interval job did not start")
	}
	require.NoError(t, r.Apply(Config{Spec: "1h"}))

	cancel()
	require.NoError(t, <-done)
	assert.True(t, finished.Load(), "Run returned while a job of the old schedule was still running")
}
