package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var stdout io.Writer = os.Stdout

// DefaultFilePath is used when the file sink is enabled without a path.
const DefaultFilePath = "./newsrelay.log"

// Config selects sinks and level.
type Config struct {
	Level string
	// Console writes to stdout (or Out). JSON switches that stream from the
	// human-readable format to JSON lines, which journald keeps structured.
	Console bool
	JSON    bool
	File    FileConfig
	// Redact lists secrets replaced by "[redacted]" in every sink. Telegram
	// client errors embed the bot token in the request URL.
	Redact []string
	// Out replaces stdout.
	Out io.Writer
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the sinks and lets Apply swap them while Loggers derived from
// it keep working.
type Service struct {
	mu   sync.Mutex
	file *os.File
	root atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service and its root logger. A file sink
// that cannot be opened is reported through the returned logger; stdout
// keeps working.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	log := Logger{svc: s}
	if err := s.Apply(cfg); err != nil {
		log.Warn("log file sink disabled", Err(err))
	}
	return s, log
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply rebuilds the sinks. The previous file is closed after the swap. On a
// file error the new logger still writes to stdout and the error is returned.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := cfg.Out
	if out == nil {
		out = stdout
	}
	red := newRedactor(cfg.Redact)

	std := consoleWriter(red.wrap(out))
	if cfg.JSON {
		std = red.wrap(out)
	}

	var (
		writers []io.Writer
		file    *os.File
		ferr    error
	)
	if cfg.Console || !cfg.File.Enabled {
		writers = append(writers, std)
	}
	if cfg.File.Enabled {
		file, ferr = openLogFile(cfg.File.Path)
		if ferr == nil {
			writers = append(writers, red.wrap(zerolog.SyncWriter(file)))
		} else if len(writers) == 0 {
			writers = append(writers, std)
		}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	s.root.Store(&zl)

	if s.file != nil {
		_ = s.file.Close()
	}
	s.file = file
	return ferr
}

func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("log file %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("log file %s: %w", path, err)
	}
	return f, nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

// minSecretLen keeps short or empty values from rewriting ordinary text.
const minSecretLen = 8

type redactor struct {
	r *strings.Replacer
}

func newRedactor(secrets []string) redactor {
	var pairs []string
	for _, s := range secrets {
		if s = strings.TrimSpace(s); len(s) >= minSecretLen {
			pairs = append(pairs, s, "[redacted]")
		}
	}
	if len(pairs) == 0 {
		return redactor{}
	}
	return redactor{r: strings.NewReplacer(pairs...)}
}

func (r redactor) wrap(w io.Writer) io.Writer {
	if r.r == nil {
		return w
	}
	return redactWriter{w: w, r: r.r}
}

type redactWriter struct {
	w io.Writer
	r *strings.Replacer
}

// Write reports len(p) so zerolog does not treat the rewritten length as a
// short write.
func (rw redactWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(rw.w, rw.r.Replace(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
