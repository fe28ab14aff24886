package transport

import (
	"context"
	"fmt"
	"time"
)

// OutcomeKind tags the result of a single delivery attempt.
type OutcomeKind int

const (
	KindDelivered OutcomeKind = iota
	KindRateLimited
	KindTimedOut
	KindPermanent
)

func (k OutcomeKind) String() string {
	switch k {
	case KindDelivered:
		return "delivered"
	case KindRateLimited:
		return "rate_limited"
	case KindTimedOut:
		return "timed_out"
	case KindPermanent:
		return "permanent_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of Channel.Send.
//
// RetryAfter is only meaningful for KindRateLimited and carries the wait the
// channel asked for. Err is set for every kind except KindDelivered.
type Outcome struct {
	Kind       OutcomeKind
	RetryAfter time.Duration
	Err        error
	MessageID  int
}

func Delivered(messageID int) Outcome { return Outcome{Kind: KindDelivered, MessageID: messageID} }

func RateLimited(retryAfter time.Duration, err error) Outcome {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Outcome{Kind: KindRateLimited, RetryAfter: retryAfter, Err: err}
}

func TimedOut(err error) Outcome { return Outcome{Kind: KindTimedOut, Err: err} }

func PermanentFailure(err error) Outcome { return Outcome{Kind: KindPermanent, Err: err} }

func (o Outcome) OK() bool { return o.Kind == KindDelivered }

// Reason is a printable description of a failed outcome.
func (o Outcome) Reason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Kind.String()
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindDelivered:
		return o.Kind.String()
	case KindRateLimited:
		return fmt.Sprintf("%s(retry_after=%s)", o.Kind, o.RetryAfter)
	default:
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason())
	}
}

// Channel delivers formatted posts to the single target channel.
//
// Implementations must not panic on transient errors; every failure is
// reported through the returned Outcome.
type Channel interface {
	Send(ctx context.Context, text string) Outcome
}
