package transport

import (
	"context"
	"sync/atomic"
	"unicode/utf8"

	logx "newsrelay/pkg/logx"
)

// LogChannel is a Channel that only logs what it would send.
// It backs the --dry-run mode.
type LogChannel struct {
	Log logx.Logger

	seq atomic.Int64
}

func (c *LogChannel) Send(ctx context.Context, text string) Outcome {
	if err := ctx.Err(); err != nil {
		return PermanentFailure(err)
	}
	id := c.seq.Add(1)
	c.Log.Info("dry-run: post not sent",
		logx.Int64("seq", id),
		logx.Int("runes", utf8.RuneCountInString(text)),
	)
	c.Log.Debug("dry-run: post body", logx.String("text", text))
	return Delivered(int(id))
}
