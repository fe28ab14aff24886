package app

import (
	"fmt"
	"strings"
	"time"

	"newsrelay/internal/config"
	"newsrelay/internal/dispatch"
	"newsrelay/internal/ledger"
	"newsrelay/internal/schedule"
	"newsrelay/internal/sources"
	"newsrelay/internal/transport/telegram"
	logx "newsrelay/pkg/logx"
)

func mapLedgerConfig(cfg *config.Config) (ledger.Config, error) {
	lc := cfg.Ledger
	driver := strings.ToLower(strings.TrimSpace(lc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	path := strings.TrimSpace(lc.Path)

	switch driver {
	case "memory", "mem":
		return ledger.Config{Driver: "memory"}, nil
	case "file":
		if path == "" {
			path = "./newsrelay"
		}
		return ledger.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			p, err := config.DefaultLedgerPath()
			if err != nil {
				return ledger.Config{}, err
			}
			path = p
		}
		busy, err := config.ParseDurationOrDefault("ledger.busy_timeout", lc.BusyTimeout, 5*time.Second)
		if err != nil {
			return ledger.Config{}, err
		}
		return ledger.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return ledger.Config{}, fmt.Errorf("unknown ledger.driver: %s", lc.Driver)
	}
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	dc := cfg.Dispatch
	pacing, err := config.ParseDurationOrDefault("dispatch.pacing", dc.Pacing, dispatch.DefaultPacing)
	if err != nil {
		return dispatch.Config{}, err
	}
	grace, err := config.ParseDurationOrDefault("dispatch.rate_limit_grace", dc.RateLimitGrace, dispatch.DefaultRateLimitGrace)
	if err != nil {
		return dispatch.Config{}, err
	}
	recovery, err := config.ParseDurationOrDefault("dispatch.timeout_recovery", dc.TimeoutRecovery, dispatch.DefaultTimeoutRecovery)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{Pacing: pacing, RateLimitGrace: grace, TimeoutRecovery: recovery}, nil
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	tc := cfg.Telegram
	timeout, err := config.ParseDurationOrDefault("telegram.send_timeout", tc.SendTimeout, 15*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:          tc.Token,
		Channel:        tc.Channel,
		SendTimeout:    timeout,
		DisablePreview: tc.DisablePreview,
	}, nil
}

func mapFetcherConfig(cfg *config.Config) (sources.FetcherConfig, error) {
	cc := cfg.Collect
	timeout, err := config.ParseDurationOrDefault("collect.http_timeout", cc.HTTPTimeout, 15*time.Second)
	if err != nil {
		return sources.FetcherConfig{}, err
	}
	return sources.FetcherConfig{
		Timeout:        timeout,
		RequestsPerSec: cc.RequestsPerSec,
		UserAgent:      strings.TrimSpace(cc.UserAgent),
	}, nil
}

// mapSources falls back to the built-in source list when none is configured.
func mapSources(cfg *config.Config) []sources.Spec {
	if len(cfg.Sources) == 0 {
		return sources.DefaultSpecs()
	}
	out := make([]sources.Spec, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		out = append(out, sources.Spec{
			Kind:     s.Kind,
			Name:     s.Name,
			URL:      s.URL,
			Language: s.Language,
			Limit:    s.Limit,
		})
	}
	return out
}

func mapScheduleConfig(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Spec:       cfg.Schedule.Spec,
		Timezone:   cfg.Schedule.Timezone,
		RunOnStart: cfg.Schedule.RunOnStart,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		Redact:  []string{cfg.Telegram.Token},
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// validate checks everything a reload must satisfy before it is committed.
func validate(cfg *config.Config, requireCredentials bool) error {
	if err := config.Validate(cfg, requireCredentials); err != nil {
		return err
	}
	if _, err := mapLedgerConfig(cfg); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Schedule.Spec) != "" {
		if _, err := schedule.Validate(mapScheduleConfig(cfg)); err != nil {
			return fmt.Errorf("schedule.spec: %w", err)
		}
	}
	return nil
}
