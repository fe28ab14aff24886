package config

import (
	"reflect"
	"strings"

	logx "newsrelay/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// attrs for logging. Tokens are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 12)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.Channel != nt.Channel || ot.Footer != nt.Footer ||
		ot.SendTimeout != nt.SendTimeout || ot.DisablePreview != nt.DisablePreview {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.String("telegram.channel", nt.Channel),
		)
	}

	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.String("dispatch.pacing", newCfg.Dispatch.Pacing),
			logx.String("dispatch.rate_limit_grace", newCfg.Dispatch.RateLimitGrace),
			logx.String("dispatch.timeout_recovery", newCfg.Dispatch.TimeoutRecovery),
		)
	}

	if oldCfg.Ledger != newCfg.Ledger {
		// The ledger is opened once per process; changes apply on restart.
		changed = append(changed, "ledger")
		attrs = append(attrs, logx.String("ledger.driver", strings.TrimSpace(newCfg.Ledger.Driver)))
	}

	if oldCfg.Collect != newCfg.Collect {
		changed = append(changed, "collect")
		attrs = append(attrs, logx.Int("collect.concurrency", newCfg.Collect.Concurrency))
	}

	if !reflect.DeepEqual(oldCfg.Sources, newCfg.Sources) {
		changed = append(changed, "sources")
		attrs = append(attrs, logx.Int("sources.count", len(newCfg.Sources)))
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs, logx.String("schedule.spec", newCfg.Schedule.Spec))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs, logx.String("logging.level", newCfg.Logging.Level))
	}

	return changed, attrs
}
