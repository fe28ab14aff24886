// Package telegram implements transport.Channel on top of telebot.
package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"newsrelay/internal/transport"
	logx "newsrelay/pkg/logx"
)

var (
	ErrNoToken   = errors.New("telegram token is empty")
	ErrNoChannel = errors.New("telegram channel is empty")
)

type Config struct {
	Token string
	// Channel is either "@username" or a numeric chat id.
	Channel        string
	SendTimeout    time.Duration
	DisablePreview bool
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
	// Offline skips the getMe call on construction.
	Offline bool
}

// Channel posts messages to one Telegram chat.
type Channel struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	to  tele.Recipient
}

type chatRecipient string

func (r chatRecipient) Recipient() string { return string(r) }

func New(cfg Config, log logx.Logger) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	if strings.TrimSpace(cfg.Channel) == "" {
		return nil, ErrNoChannel
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     cfg.URL,
		Client:  &http.Client{Timeout: cfg.SendTimeout},
		Offline: cfg.Offline,
		// Sending only; no poller.
	})
	if err != nil {
		return nil, err
	}
	return &Channel{
		cfg: cfg,
		log: log,
		bot: b,
		to:  chatRecipient(strings.TrimSpace(cfg.Channel)),
	}, nil
}

// Send posts text as HTML and classifies the result.
func (c *Channel) Send(ctx context.Context, text string) transport.Outcome {
	if err := ctx.Err(); err != nil {
		return transport.PermanentFailure(err)
	}

	opt := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: c.cfg.DisablePreview,
	}

	// telebot has no per-call context; bound the call so a cancelled run
	// does not wait for the full HTTP timeout.
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := c.bot.Send(c.to, text, opt)
		done <- result{msg: msg, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			out := Classify(r.err)
			c.log.Debug("send failed", logx.String("outcome", out.String()))
			return out
		}
		id := 0
		if r.msg != nil {
			id = r.msg.ID
		}
		return transport.Delivered(id)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return transport.TimedOut(ctx.Err())
		}
		return transport.PermanentFailure(ctx.Err())
	}
}

// Classify maps a telebot error onto a delivery outcome.
//
//   - flood control (HTTP 429) -> RateLimited with the server's retry_after
//   - network or deadline timeouts -> TimedOut
//   - anything else -> PermanentFailure
func Classify(err error) transport.Outcome {
	if err == nil {
		return transport.Delivered(0)
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return transport.RateLimited(time.Duration(flood.RetryAfter)*time.Second, err)
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return transport.RateLimited(time.Duration(floodPtr.RetryAfter)*time.Second, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return transport.TimedOut(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return transport.TimedOut(err)
	}
	return transport.PermanentFailure(err)
}
