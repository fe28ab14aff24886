// Package ledger persists the set of links already delivered to the channel.
//
// The ledger is append-only: a link, once committed, is never updated or
// removed. It is the single source of truth for "already delivered" across
// runs and process restarts.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"newsrelay/internal/feed"
	logx "newsrelay/pkg/logx"
)

var (
	ErrClosed         = errors.New("ledger closed")
	ErrNotInitialized = errors.New("ledger not initialized")
)

// Ledger is the persistence API used by the pipeline and the dispatcher.
type Ledger interface {
	// Initialize ensures the persisted set exists. Safe to call on every run.
	Initialize(ctx context.Context) error
	// LoadAll returns every link ever committed.
	LoadAll(ctx context.Context) (feed.Set, error)
	// Contains performs a fresh read for a single link.
	Contains(ctx context.Context, link string) (bool, error)
	// TryCommit inserts link if absent and reports whether this call inserted it.
	// A link that is already present is not an error.
	TryCommit(ctx context.Context, link string) (bool, error)
	Count(ctx context.Context) (int, error)

	AppendRun(ctx context.Context, r RunRecord) error
	RecentRuns(ctx context.Context, n int) ([]RunRecord, error)

	Close() error
}

// Config configures the ledger backend.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "file": append-only JSON Lines journal
//   - "memory": process-local, nothing survives a restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord summarizes one pipeline run.
// Keep it compact and schema-stable.
type RunRecord struct {
	StartedAt    time.Time     `json:"started_at"`
	Took         time.Duration `json:"took"`
	Collected    int           `json:"collected"`
	Unique       int           `json:"unique"`
	Delivered    int           `json:"delivered"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	SourceErrors int           `json:"source_errors"`
	DryRun       bool          `json:"dry_run,omitempty"`
}

// Open returns the configured backend. Nothing is created on disk until
// Initialize is called.
func Open(cfg Config, log logx.Logger) (Ledger, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		st, err := openSQLite(cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "file":
		st, err := openFile(cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown ledger driver: " + driver)
	}
}

// Snapshot copies every committed link of src into a fresh memory ledger.
// Dry runs use it so nothing is written to the real store.
func Snapshot(ctx context.Context, src Ledger) (*Memory, error) {
	if err := src.Initialize(ctx); err != nil {
		return nil, err
	}
	set, err := src.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	m := NewMemory()
	m.sent = set.Clone()
	return m, nil
}

func normalize(link string) string { return strings.TrimSpace(link) }
