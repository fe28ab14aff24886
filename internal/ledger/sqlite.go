package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"newsrelay/internal/feed"
	logx "newsrelay/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// sqliteStore holds mu shared for every operation; Close takes it exclusively
// and so waits for in-flight statements.
type sqliteStore struct {
	log logx.Logger

	mu    sync.RWMutex
	db    *sql.DB
	ready bool
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger: create schema: %w", err)
	}
	s.ready = true
	return nil
}

// check must be called with mu held.
func (s *sqliteStore) check() error {
	if s.db == nil {
		return ErrClosed
	}
	if !s.ready {
		return ErrNotInitialized
	}
	return nil
}

func (s *sqliteStore) LoadAll(ctx context.Context) (feed.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT link FROM sent`)
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	defer rows.Close()

	out := feed.Set{}
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("ledger: load: %w", err)
		}
		out.Add(link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}
	s.log.Debug("ledger loaded", logx.Int("links", out.Len()))
	return out, nil
}

func (s *sqliteStore) Contains(ctx context.Context, link string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return false, err
	}
	link = normalize(link)
	if link == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sent WHERE link = ?`, link).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TryCommit relies on the primary key: the insert is the serialization point
// if two processes ever race on the same link.
func (s *sqliteStore) TryCommit(ctx context.Context, link string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return false, err
	}
	link = normalize(link)
	if link == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sent(link) VALUES(?) ON CONFLICT(link) DO NOTHING`, link)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(started_at, took_ms, collected, uniq, delivered, skipped, failed, source_errors, dry_run)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.Took.Milliseconds(), r.Collected, r.Unique,
		r.Delivered, r.Skipped, r.Failed, r.SourceErrors, boolInt(r.DryRun),
	)
	return err
}

func (s *sqliteStore) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT started_at, took_ms, collected, uniq, delivered, skipped, failed, source_errors, dry_run
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			started string
			tookMS  int64
			dry     int
		)
		if err := rows.Scan(&started, &tookMS, &r.Collected, &r.Unique, &r.Delivered, &r.Skipped, &r.Failed, &r.SourceErrors, &dry); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			r.StartedAt = t
		}
		r.Took = time.Duration(tookMS) * time.Millisecond
		r.DryRun = dry != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
