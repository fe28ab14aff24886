package config

// Config is the on-disk configuration. All durations are Go duration strings
// (e.g. "500ms", "3s", "15m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Ledger   LedgerConfig   `json:"ledger,omitempty"`
	Collect  CollectConfig  `json:"collect,omitempty"`
	Sources  []SourceConfig `json:"sources,omitempty"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Logging  LoggingConfig  `json:"logging"`
}

// TelegramConfig describes the delivery channel.
//
// Channel is either "@username" or a numeric chat id. Token and Channel can be
// supplied through TELEGRAM_BOT_TOKEN and TELEGRAM_CHANNEL_ID instead.
type TelegramConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
	// Footer is appended to every post as "📣 Channel: <footer>".
	Footer         string `json:"footer,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

// DispatchConfig controls pacing and backoff between sends.
//
// Defaults (when fields are omitted/zero):
//   - pacing: "3s"
//   - rate_limit_grace: "1s"
//   - timeout_recovery: "5s"
type DispatchConfig struct {
	Pacing          string `json:"pacing,omitempty"`
	RateLimitGrace  string `json:"rate_limit_grace,omitempty"`
	TimeoutRecovery string `json:"timeout_recovery,omitempty"`
}

// LedgerConfig selects the persistence backend for delivered links.
//
// Example:
//
//	"ledger": { "driver": "sqlite", "path": "./sent_articles.db" }
type LedgerConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// CollectConfig controls how sources are fetched.
//
// Defaults (when fields are omitted/zero):
//   - concurrency: 4
//   - requests_per_sec: 5
//   - http_timeout: "15s"
type CollectConfig struct {
	Concurrency    int     `json:"concurrency,omitempty"`
	RequestsPerSec float64 `json:"requests_per_sec,omitempty"`
	HTTPTimeout    string  `json:"http_timeout,omitempty"`
	UserAgent      string  `json:"user_agent,omitempty"`
}

// SourceConfig is one content source. Kind is rss, github or hackernews.
type SourceConfig struct {
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ScheduleConfig drives serve mode. Spec is a cron expression, a duration
// ("30m", "every:30m") or an "HH:MM" interval ("01:30" runs every 90 minutes).
type ScheduleConfig struct {
	Spec       string `json:"spec,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
}

// LoggingConfig selects log sinks. JSON switches console output to JSON
// lines (useful under journald). The Telegram token is always redacted.
type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	JSON    bool        `json:"json,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
