package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"newsrelay/internal/feed"
	logx "newsrelay/pkg/logx"
)

// fileStore is a dependency-free ledger backend.
//
// Files:
//   - <prefix>.sent.jsonl (append-only journal of committed links)
//   - <prefix>.runs.jsonl (append-only run history)
//
// Every commit is fsynced before TryCommit returns. The store is meant for a
// single process; reads pick up lines appended by others but inserts are not
// atomic across processes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	sentPath string
	runsPath string

	sentFile *os.File
	offset   int64 // bytes of sentFile already replayed
	sent     feed.Set
	closed   bool

	beforeAppend func() // test hook, runs between refresh and write
}

type sentRecord struct {
	Link string `json:"link"`
	At   int64  `json:"at"` // unix milli
}

func openFile(cfg Config, log logx.Logger) (*fileStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	return &fileStore{
		log:      log,
		sentPath: prefix + ".sent.jsonl",
		runsPath: prefix + ".runs.jsonl",
	}, nil
}

func (s *fileStore) Initialize(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.sentFile != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.sentPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.sentPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	if err := terminateLastLine(f); err != nil {
		_ = f.Close()
		return err
	}

	s.sentFile = f
	s.offset = 0
	s.sent = feed.Set{}
	if err := s.refreshLocked(); err != nil {
		_ = f.Close()
		s.sentFile = nil
		return err
	}
	s.log.Debug("ledger journal replayed", logx.String("path", s.sentPath), logx.Int("links", s.sent.Len()))
	return nil
}

// terminateLastLine makes sure a torn write from a crashed process does not
// swallow the next record.
func terminateLastLine(f *os.File) error {
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// refreshLocked replays journal lines appended since the last read.
func (s *fileStore) refreshLocked() error {
	st, err := s.sentFile.Stat()
	if err != nil {
		return err
	}
	size := st.Size()
	if size <= s.offset {
		return nil
	}
	buf := make([]byte, size-s.offset)
	if _, err := s.sentFile.ReadAt(buf, s.offset); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	// Only consume complete lines; a partial tail is retried on the next refresh.
	end := bytes.LastIndexByte(buf, '\n')
	if end < 0 {
		return nil
	}
	sc := bufio.NewScanner(bytes.NewReader(buf[:end+1]))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var r sentRecord
		if err := json.Unmarshal(line, &r); err != nil {
			s.log.Warn("ledger journal: skipping malformed line", logx.Err(err))
			continue
		}
		s.sent.Add(r.Link)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	s.offset += int64(end + 1)
	return nil
}

func (s *fileStore) ready() error {
	if s.closed {
		return ErrClosed
	}
	if s.sentFile == nil {
		return ErrNotInitialized
	}
	return nil
}

func (s *fileStore) LoadAll(ctx context.Context) (feed.Set, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := s.refreshLocked(); err != nil {
		return nil, err
	}
	return s.sent.Clone(), nil
}

func (s *fileStore) Contains(ctx context.Context, link string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return false, err
	}
	if err := s.refreshLocked(); err != nil {
		return false, err
	}
	return s.sent.Has(link), nil
}

func (s *fileStore) TryCommit(ctx context.Context, link string) (bool, error) {
	_ = ctx
	link = normalize(link)
	if link == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return false, err
	}
	if err := s.refreshLocked(); err != nil {
		return false, err
	}
	if s.sent.Has(link) {
		return false, nil
	}

	b, err := json.Marshal(sentRecord{Link: link, At: time.Now().UnixMilli()})
	if err != nil {
		return false, err
	}
	b = append(b, '\n')
	if s.beforeAppend != nil {
		s.beforeAppend()
	}
	// O_APPEND may place other writers' lines before ours, so offset is left
	// for the next refresh to advance; replaying our own line is harmless.
	if _, err := s.sentFile.Write(b); err != nil {
		return false, err
	}
	if err := s.sentFile.Sync(); err != nil {
		return false, err
	}
	s.sent.Add(link)
	return true, nil
}

func (s *fileStore) Count(ctx context.Context) (int, error) {
	set, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return set.Len(), nil
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	f, err := os.OpenFile(s.runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *fileStore) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	_ = ctx
	if n <= 0 {
		n = 10
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.runsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []RunRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		all = append(all, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	// newest first
	out := make([]RunRecord, 0, min(n, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.sentFile == nil {
		return nil
	}
	err := s.sentFile.Close()
	s.sentFile = nil
	return err
}
