package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	logx "newsrelay/pkg/logx"
)

func TestOutcomeConstructors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	assert.True(t, Delivered(7).OK())
	assert.Equal(t, 7, Delivered(7).MessageID)

	rl := RateLimited(5*time.Second, boom)
	assert.Equal(t, KindRateLimited, rl.Kind)
	assert.Equal(t, 5*time.Second, rl.RetryAfter)
	assert.Equal(t, "rate_limited(retry_after=5s)", rl.String())

	assert.Equal(t, time.Duration(0), RateLimited(-time.Second, nil).RetryAfter)

	to := TimedOut(boom)
	assert.False(t, to.OK())
	assert.Equal(t, "timed_out(boom)", to.String())

	assert.Equal(t, "permanent_failure", PermanentFailure(nil).Reason())
}

func TestLogChannelDelivers(t *testing.T) {
	t.Parallel()
	ch := &LogChannel{Log: logx.Nop()}

	first := ch.Send(context.Background(), "hello")
	second := ch.Send(context.Background(), "world")
	assert.True(t, first.OK())
	assert.Equal(t, 2, second.MessageID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, KindPermanent, ch.Send(ctx, "late").Kind)
}
