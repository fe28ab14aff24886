package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	logx "newsrelay/pkg/logx"
)

const maxBodyBytes = 8 << 20

// FetcherConfig controls outgoing HTTP requests.
//
// Defaults (when fields are zero):
//   - Timeout: 15s
//   - RequestsPerSec: 5
//   - UserAgent: "newsrelay/1.0"
type FetcherConfig struct {
	Timeout        time.Duration
	RequestsPerSec float64
	UserAgent      string
	// Log receives per-request problems that do not fail a whole source.
	Log logx.Logger
}

// Fetcher is the HTTP client shared by all sources. A token bucket keeps the
// process polite towards the upstream sites regardless of collector
// concurrency.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       logx.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsrelay/1.0"
	}
	if cfg.Log.IsZero() {
		cfg.Log = logx.Nop()
	}
	burst := int(cfg.RequestsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst),
		userAgent: cfg.UserAgent,
		log:       cfg.Log,
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("GET %s: http %d", e.URL, e.Status) }

// Get returns the body of url. The caller closes it.
func (f *Fetcher) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBodyBytes), resp.Body}, nil
}
