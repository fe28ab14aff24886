package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

const (
	EnvToken      = "TELEGRAM_BOT_TOKEN"
	EnvChannel    = "TELEGRAM_CHANNEL_ID"
	EnvLedgerPath = "NEWSRELAY_LEDGER_PATH"

	DefaultFooter   = "@AI_Nexus_RSS"
	DefaultSchedule = "0 */2 * * *"

	ledgerFileName = "newsrelay/sent_articles.db"
)

var (
	ErrNoToken   = errors.New("telegram.token is required (or set " + EnvToken + ")")
	ErrNoChannel = errors.New("telegram.channel is required (or set " + EnvChannel + ")")
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{Footer: DefaultFooter},
		Logging:  LoggingConfig{Level: "info", Console: true},
	}
}

// ApplyEnv overlays environment overrides onto cfg. lookup is os.LookupEnv
// when nil.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvToken); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvChannel); ok && strings.TrimSpace(v) != "" {
		cfg.Telegram.Channel = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvLedgerPath); ok && strings.TrimSpace(v) != "" {
		cfg.Ledger.Path = strings.TrimSpace(v)
	}
}

// DefaultLedgerPath places the sqlite ledger under the XDG data directory,
// creating parent directories as needed.
func DefaultLedgerPath() (string, error) {
	p, err := xdg.DataFile(ledgerFileName)
	if err != nil {
		return "", fmt.Errorf("resolve default ledger path: %w", err)
	}
	return p, nil
}

// Validate checks every field that can be checked without touching the
// network. Credentials are only required when requireCredentials is set
// (dry runs and ledger inspection do not need them).
func Validate(cfg *Config, requireCredentials bool) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if requireCredentials {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, ErrNoToken)
		}
		if strings.TrimSpace(cfg.Telegram.Channel) == "" {
			errs = append(errs, ErrNoChannel)
		}
	}

	durations := []struct{ path, raw string }{
		{"telegram.send_timeout", cfg.Telegram.SendTimeout},
		{"dispatch.pacing", cfg.Dispatch.Pacing},
		{"dispatch.rate_limit_grace", cfg.Dispatch.RateLimitGrace},
		{"dispatch.timeout_recovery", cfg.Dispatch.TimeoutRecovery},
		{"ledger.busy_timeout", cfg.Ledger.BusyTimeout},
		{"collect.http_timeout", cfg.Collect.HTTPTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			errs = append(errs, err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Ledger.Driver)) {
	case "", "sqlite", "sqlite3", "file", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("ledger.driver: unknown driver %q", cfg.Ledger.Driver))
	}
	if cfg.Collect.Concurrency < 0 {
		errs = append(errs, errors.New("collect.concurrency: must be >= 0"))
	}
	if cfg.Collect.RequestsPerSec < 0 {
		errs = append(errs, errors.New("collect.requests_per_sec: must be >= 0"))
	}

	for i, s := range cfg.Sources {
		path := fmt.Sprintf("sources[%d]", i)
		switch strings.ToLower(strings.TrimSpace(s.Kind)) {
		case "rss", "atom", "feed":
			if strings.TrimSpace(s.URL) == "" {
				errs = append(errs, fmt.Errorf("%s.url: required for kind %q", path, s.Kind))
			}
		case "github", "github_trending", "trending", "hackernews", "hn":
		default:
			errs = append(errs, fmt.Errorf("%s.kind: unknown kind %q", path, s.Kind))
		}
		if s.Limit < 0 {
			errs = append(errs, fmt.Errorf("%s.limit: must be >= 0", path))
		}
	}

	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("schedule.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}
