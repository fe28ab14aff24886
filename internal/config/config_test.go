package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("newsrelay.yaml", []byte(`
telegram:
  token: "123:abc"
  channel: "@news"
dispatch:
  pacing: 2s
sources:
  - kind: rss
    name: Blog
    url: https://example.com/feed.xml
    limit: 5
  - kind: hackernews
schedule:
  spec: "0 */2 * * *"
  run_on_start: true
`))
	require.NoError(t, err)

	assert.Equal(t, "@news", cfg.Telegram.Channel)
	assert.Equal(t, DefaultFooter, cfg.Telegram.Footer)
	assert.Equal(t, "2s", cfg.Dispatch.Pacing)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, 5, cfg.Sources[0].Limit)
	assert.True(t, cfg.Schedule.RunOnStart)
	assert.True(t, cfg.Logging.Console)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"telegram":{"token":"x","chanel":"@typo"}}`))
	assert.Error(t, err)

	_, err = Decode("c.yml", []byte("ledger:\n  driver: file\n  dir: ./x\n"))
	assert.Error(t, err)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"telegram":{}} {"telegram":{}}`))
	assert.Error(t, err)
}

func TestDecodeEmptyYAML(t *testing.T) {
	cfg, err := Decode("c.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvToken:      " 42:secret ",
		EnvChannel:    "-100123",
		EnvLedgerPath: "/var/lib/newsrelay/sent.db",
	}
	cfg := Default()
	cfg.Telegram.Token = "from-file"
	ApplyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "42:secret", cfg.Telegram.Token)
	assert.Equal(t, "-100123", cfg.Telegram.Channel)
	assert.Equal(t, "/var/lib/newsrelay/sent.db", cfg.Ledger.Path)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Telegram.Token = "t"
		c.Telegram.Channel = "@c"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		creds   bool
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}, creds: true},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, creds: true, wantErr: "telegram.token"},
		{name: "missing token without creds", mutate: func(c *Config) { c.Telegram.Token = "" }},
		{name: "bad duration", mutate: func(c *Config) { c.Dispatch.Pacing = "soon" }, wantErr: "dispatch.pacing"},
		{name: "negative duration", mutate: func(c *Config) { c.Dispatch.TimeoutRecovery = "-1s" }, wantErr: "dispatch.timeout_recovery"},
		{name: "unknown driver", mutate: func(c *Config) { c.Ledger.Driver = "redis" }, wantErr: "ledger.driver"},
		{name: "rss without url", mutate: func(c *Config) { c.Sources = []SourceConfig{{Kind: "rss", Name: "x"}} }, wantErr: "sources[0].url"},
		{name: "unknown kind", mutate: func(c *Config) { c.Sources = []SourceConfig{{Kind: "hn"}, {Kind: "gopher"}} }, wantErr: "sources[1].kind"},
		{name: "bad timezone", mutate: func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, wantErr: "schedule.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := Validate(c, tt.creds)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsNoTokenSentinel(t *testing.T) {
	err := Validate(Default(), true)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = ParseDurationOrDefault("x", " 250ms ", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationField("collect.http_timeout", "ten")
	assert.ErrorContains(t, err, "collect.http_timeout")
}

func TestManagerOptionalMissingFile(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "absent.yaml"), true)
	m.SetLookupEnv(func(k string) (string, bool) {
		if k == EnvChannel {
			return "@env", true
		}
		return "", false
	})
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "@env", cfg.Telegram.Channel)
	assert.Same(t, cfg, m.Get())

	_, err = NewManager(filepath.Join(t.TempDir(), "absent.yaml"), false).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManagerReloadPublishesChanges(t *testing.T) {
	path := writeFile(t, "newsrelay.json", `{"telegram":{"channel":"@a"}}`)
	m := NewManager(path, false)
	m.SetLookupEnv(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	// Same content: nothing published.
	m.reload(context.Background())
	assert.Len(t, ch, 0)

	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"channel":"@b"}}`), 0o644))
	m.reload(context.Background())
	require.Len(t, ch, 1)
	assert.Equal(t, "@b", (<-ch).Telegram.Channel)
	assert.Equal(t, "@b", m.Get().Telegram.Channel)
}

func TestManagerReloadHonoursValidator(t *testing.T) {
	path := writeFile(t, "newsrelay.json", `{"telegram":{"channel":"@a"}}`)
	m := NewManager(path, false)
	m.SetLookupEnv(noEnv)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(_ context.Context, c *Config) error { return Validate(c, false) })

	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"channel":"@b"},"dispatch":{"pacing":"bad"}}`), 0o644))
	m.reload(context.Background())
	assert.Equal(t, "@a", m.Get().Telegram.Channel)
}

func TestWatchPicksUpWrites(t *testing.T) {
	path := writeFile(t, "newsrelay.json", `{"telegram":{"channel":"@a"}}`)
	m := NewManager(path, false)
	m.SetLookupEnv(noEnv)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Keep rewriting until the watcher is up and the change is seen.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"telegram":{"channel":"@watched"}}`), 0o644)
		select {
		case c := <-ch:
			return c.Telegram.Channel == "@watched"
		default:
			return false
		}
	}, 5*time.Second, 300*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSummarizeChange(t *testing.T) {
	a := Default()
	b := Default()
	b.Telegram.Token = "new-secret"
	b.Sources = []SourceConfig{{Kind: "hn"}}
	b.Dispatch.Pacing = "1s"

	changed, attrs := SummarizeChange(a, b)
	assert.Equal(t, []string{"telegram", "dispatch", "sources"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeChange(a, Default())
	assert.Empty(t, changed)
}

func TestDefaultLedgerPath(t *testing.T) {
	t.Cleanup(xdg.Reload)
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)
	xdg.Reload()

	p, err := DefaultLedgerPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))
	assert.Equal(t, filepath.Join(dataHome, "newsrelay", "sent_articles.db"), p)
}
