package ledger

import (
	"context"
	"sync"

	"newsrelay/internal/feed"
)

// Memory is an in-process ledger. It is used by tests and dry runs.
type Memory struct {
	mu   sync.Mutex
	sent feed.Set
	runs []RunRecord

	// Commits records successful inserts in order.
	commits []string
}

func NewMemory(links ...string) *Memory {
	return &Memory{sent: feed.NewSet(links...)}
}

func (m *Memory) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.sent == nil {
		m.sent = feed.Set{}
	}
	m.mu.Unlock()
	return ctx.Err()
}

func (m *Memory) LoadAll(ctx context.Context) (feed.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent.Clone(), nil
}

func (m *Memory) Contains(ctx context.Context, link string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent.Has(link), nil
}

func (m *Memory) TryCommit(ctx context.Context, link string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	link = normalize(link)
	if link == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = feed.Set{}
	}
	if m.sent.Has(link) {
		return false, nil
	}
	m.sent.Add(link)
	m.commits = append(m.commits, link)
	return true, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent.Len(), ctx.Err()
}

// Commits returns the links inserted through TryCommit, in order.
func (m *Memory) Commits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commits...)
}

func (m *Memory) AppendRun(ctx context.Context, r RunRecord) error {
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *Memory) RecentRuns(ctx context.Context, n int) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		n = 10
	}
	out := make([]RunRecord, 0, min(n, len(m.runs)))
	for i := len(m.runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.runs[i])
	}
	return out, ctx.Err()
}

func (m *Memory) Close() error { return nil }
