// Package sources fetches candidate items from external content sources.
//
// A source maps its configuration to a batch of items. It never touches the
// ledger; the seen set it receives is only a hint to skip known links early.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"newsrelay/internal/feed"
)

// DefaultLimit is the per-source item cap when none is configured.
const DefaultLimit = 10

// Source produces candidate items.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	Fetch(ctx context.Context, seen feed.Set, limit int) ([]feed.Item, error)
}

// Kind values accepted by Build.
const (
	KindRSS        = "rss"
	KindGitHub     = "github"
	KindHackerNews = "hackernews"
)

// Spec describes one configured source.
type Spec struct {
	Kind string
	// Name is the display name; for RSS it is also the source tag used to
	// decorate posts.
	Name     string
	URL      string
	Language string
	Limit    int
}

var ErrUnknownKind = errors.New("unknown source kind")

// Build instantiates the source described by spec.
func Build(spec Spec, f *Fetcher) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(spec.Kind)) {
	case KindRSS, "atom", "feed":
		if strings.TrimSpace(spec.URL) == "" {
			return nil, fmt.Errorf("rss source %q: url is required", spec.Name)
		}
		return NewRSS(spec.Name, spec.URL, f), nil
	case KindGitHub, "github_trending", "trending":
		return NewGitHubTrending(spec.Language, spec.URL, f), nil
	case KindHackerNews, "hn":
		return NewHackerNews(spec.URL, f), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return n
}
