package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "newsrelay/pkg/logx"
)

func backends(t *testing.T) map[string]func(t *testing.T, dir string) Ledger {
	t.Helper()
	open := func(driver string) func(t *testing.T, dir string) Ledger {
		return func(t *testing.T, dir string) Ledger {
			l, err := Open(Config{Driver: driver, Path: filepath.Join(dir, "ledger.db")}, logx.Nop())
			require.NoError(t, err)
			return l
		}
	}
	return map[string]func(t *testing.T, dir string) Ledger{
		"sqlite": open("sqlite"),
		"file":   open("file"),
	}
}

func TestTryCommitIdempotent(t *testing.T) {
	for name, open := range backends(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := open(t, t.TempDir())
			defer l.Close()
			require.NoError(t, l.Initialize(ctx))

			inserted, err := l.TryCommit(ctx, "http://b")
			require.NoError(t, err)
			assert.True(t, inserted)

			before, err := l.LoadAll(ctx)
			require.NoError(t, err)

			inserted, err = l.TryCommit(ctx, "http://b")
			require.NoError(t, err)
			assert.False(t, inserted, "second commit must report already present")

			after, err := l.LoadAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			n, err := l.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	for name, open := range backends(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := open(t, t.TempDir())
			defer l.Close()
			require.NoError(t, l.Initialize(ctx))
			_, err := l.TryCommit(ctx, "http://a")
			require.NoError(t, err)
			require.NoError(t, l.Initialize(ctx))

			ok, err := l.Contains(ctx, "http://a")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestCommittedLinksSurviveReopen(t *testing.T) {
	for name, open := range backends(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			first := open(t, dir)
			require.NoError(t, first.Initialize(ctx))
			_, err := first.TryCommit(ctx, "http://z")
			require.NoError(t, err)
			// Simulate a process that dies right after the commit: the next
			// handle must see the link without any orderly shutdown help.
			second := open(t, dir)
			defer second.Close()
			require.NoError(t, second.Initialize(ctx))

			set, err := second.LoadAll(ctx)
			require.NoError(t, err)
			assert.True(t, set.Has("http://z"))

			inserted, err := second.TryCommit(ctx, "http://z")
			require.NoError(t, err)
			assert.False(t, inserted)
			_ = first.Close()
		})
	}
}

func TestUseBeforeInitialize(t *testing.T) {
	for name, open := range backends(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			l := open(t, t.TempDir())
			defer l.Close()
			_, err := l.LoadAll(context.Background())
			assert.ErrorIs(t, err, ErrNotInitialized)
		})
	}
}

func TestRunHistoryNewestFirst(t *testing.T) {
	for name, open := range backends(t) {
		open := open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := open(t, t.TempDir())
			defer l.Close()
			require.NoError(t, l.Initialize(ctx))

			base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			for i := 0; i < 3; i++ {
				require.NoError(t, l.AppendRun(ctx, RunRecord{
					StartedAt: base.Add(time.Duration(i) * time.Hour),
					Took:      1500 * time.Millisecond,
					Delivered: i,
				}))
			}

			runs, err := l.RecentRuns(ctx, 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, 2, runs[0].Delivered)
			assert.Equal(t, 1, runs[1].Delivered)
			assert.Equal(t, 1500*time.Millisecond, runs[0].Took)
			assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))
		})
	}
}

func TestFileJournalTornTail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")

	journal := filepath.Join(dir, "ledger.sent.jsonl")
	require.NoError(t, os.WriteFile(journal, []byte("{\"link\":\"http://a\",\"at\":1}\n{\"link\":\"http://tor"), 0o600))

	l, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Initialize(ctx))

	inserted, err := l.TryCommit(ctx, "http://b")
	require.NoError(t, err)
	assert.True(t, inserted)

	reopened, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer reopened.Close()
	require.NoError(t, reopened.Initialize(ctx))
	set, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.True(t, set.Has("http://a"))
	assert.True(t, set.Has("http://b"))
	assert.Equal(t, 2, set.Len())
}

func TestFileSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger")

	a, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, b.Initialize(ctx))

	_, err = a.TryCommit(ctx, "http://x")
	require.NoError(t, err)

	ok, err := b.Contains(ctx, "http://x")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileKeepsLinesAppendedDuringCommit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger")

	a, err := openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer a.Close()
	b, err := openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, a.Initialize(ctx))
	require.NoError(t, b.Initialize(ctx))

	a.beforeAppend = func() {
		inserted, err := b.TryCommit(ctx, "http://other/longer-link")
		require.NoError(t, err)
		require.True(t, inserted)
	}
	inserted, err := a.TryCommit(ctx, "http://a")
	require.NoError(t, err)
	assert.True(t, inserted)
	a.beforeAppend = nil

	set, err := a.LoadAll(ctx)
	require.NoError(t, err)
	assert.True(t, set.Has("http://a"))
	assert.True(t, set.Has("http://other/longer-link"))

	inserted, err = a.TryCommit(ctx, "http://other/longer-link")
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestSQLiteCloseWaitsForInFlightCommit(t *testing.T) {
	ctx := context.Background()
	s, err := openSQLite(Config{Path: filepath.Join(t.TempDir(), "ledger.db")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Initialize(ctx))

	s.mu.RLock()
	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while an operation held the store")
	case <-time.After(100 * time.Millisecond):
	}
	s.mu.RUnlock()
	require.NoError(t, <-closed)

	_, err = s.TryCommit(ctx, "http://late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotIsDetached(t *testing.T) {
	ctx := context.Background()
	src := NewMemory("http://a")

	snap, err := Snapshot(ctx, src)
	require.NoError(t, err)
	_, err = snap.TryCommit(ctx, "http://b")
	require.NoError(t, err)

	ok, err := src.Contains(ctx, "http://b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"http://b"}, snap.Commits())
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)

	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err, "sqlite without a path")
}
