package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"newsrelay/internal/feed"
)

// RSS reads an RSS or Atom feed.
type RSS struct {
	name string
	url  string
	f    *Fetcher
}

func NewRSS(name, url string, f *Fetcher) *RSS {
	name = strings.TrimSpace(name)
	if name == "" {
		name = url
	}
	return &RSS{name: name, url: strings.TrimSpace(url), f: f}
}

func (r *RSS) Name() string { return r.name }

// Fetch returns up to limit entries whose link is not in seen, in feed order.
func (r *RSS) Fetch(ctx context.Context, seen feed.Set, limit int) ([]feed.Item, error) {
	limit = limitOrDefault(limit)

	body, err := r.f.Get(ctx, r.url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.url, err)
	}

	out := make([]feed.Item, 0, limit)
	for _, it := range parsed.Items {
		if len(out) >= limit {
			break
		}
		if it == nil {
			continue
		}
		link := strings.TrimSpace(it.Link)
		if link == "" || seen.Has(link) {
			continue
		}
		title := strings.TrimSpace(plainText(it.Title))
		if title == "" {
			title = link
		}
		desc := it.Description
		if strings.TrimSpace(desc) == "" {
			desc = it.Content
		}
		out = append(out, feed.Item{
			Title:     title,
			Link:      link,
			Summary:   summarize(desc),
			SourceTag: r.name,
		})
	}
	return out, nil
}
