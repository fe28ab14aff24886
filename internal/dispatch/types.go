package dispatch

import (
	"context"
	"time"

	"newsrelay/internal/feed"
	"newsrelay/internal/transport"
)

// State is the per-item dispatch state.
type State int

const (
	StatePending State = iota
	StateDelivering
	StateDelivered
	StateSkipped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDelivering:
		return "delivering"
	case StateDelivered:
		return "delivered"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateSkipped || s == StateFailed
}

// Config controls pacing and backoff.
//
// Defaults (when fields are zero):
//   - Pacing: 3s
//   - RateLimitGrace: 1s
//   - TimeoutRecovery: 5s
type Config struct {
	// Pacing is the cooldown after every successful send.
	Pacing time.Duration
	// RateLimitGrace is added to the channel's retry_after hint.
	RateLimitGrace time.Duration
	// TimeoutRecovery is the pause after a timed out send.
	TimeoutRecovery time.Duration
}

const (
	DefaultPacing          = 3 * time.Second
	DefaultRateLimitGrace  = 1 * time.Second
	DefaultTimeoutRecovery = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Pacing <= 0 {
		c.Pacing = DefaultPacing
	}
	if c.RateLimitGrace <= 0 {
		c.RateLimitGrace = DefaultRateLimitGrace
	}
	if c.TimeoutRecovery <= 0 {
		c.TimeoutRecovery = DefaultTimeoutRecovery
	}
	return c
}

// Ledger is the subset of the ledger the dispatcher needs.
type Ledger interface {
	Contains(ctx context.Context, link string) (bool, error)
	TryCommit(ctx context.Context, link string) (bool, error)
}

// Formatter renders an item into channel text.
type Formatter interface {
	Post(it feed.Item) string
}

// Result is the final state of one item.
type Result struct {
	Item     feed.Item
	State    State
	Attempts int
	// Outcome is the last delivery outcome (zero when no send was attempted).
	Outcome transport.Outcome
	// Err explains a skip/failure that did not come from the channel.
	Err error
	// Committed is false when the ledger already had the link at commit time.
	Committed bool
}

// Report aggregates a dispatch pass.
type Report struct {
	Results   []Result
	Delivered int
	Skipped   int
	Failed    int
	// RateLimited counts items that hit flood control at least once.
	RateLimited int
	// Pending counts items never reached because the run was cancelled.
	Pending int
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.State {
	case StateDelivered:
		r.Delivered++
	case StateSkipped:
		r.Skipped++
	case StateFailed:
		r.Failed++
	}
}
