package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"newsrelay/internal/feed"
	logx "newsrelay/pkg/logx"
)

const (
	hnBaseURL     = "https://hacker-news.firebaseio.com/v0"
	hnItemURL     = "https://news.ycombinator.com/item?id="
	hnSourceTag   = "Hacker News"
	hnPlaceholder = "Click to read more or join the discussion."
)

// hnScanFactor bounds item lookups to limit*hnScanFactor when many stories
// are already known or unusable.
const hnScanFactor = 3

// HackerNews reads the top stories list from the official API.
type HackerNews struct {
	baseURL string
	f       *Fetcher
}

func NewHackerNews(baseURL string, f *Fetcher) *HackerNews {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = hnBaseURL
	}
	return &HackerNews{baseURL: baseURL, f: f}
}

func (h *HackerNews) Name() string { return hnSourceTag }

type hnItem struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Dead    bool   `json:"dead"`
	Deleted bool   `json:"deleted"`
}

func (h *HackerNews) Fetch(ctx context.Context, seen feed.Set, limit int) ([]feed.Item, error) {
	limit = limitOrDefault(limit)

	var ids []int64
	if err := h.getJSON(ctx, h.baseURL+"/topstories.json", &ids); err != nil {
		return nil, err
	}

	out := make([]feed.Item, 0, limit)
	scanned := 0
	for _, id := range ids {
		if len(out) >= limit || scanned >= limit*hnScanFactor {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		discussion := fmt.Sprintf("%s%d", hnItemURL, id)
		if seen.Has(discussion) {
			continue
		}
		scanned++

		var it hnItem
		if err := h.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", h.baseURL, id), &it); err != nil {
			// One broken story should not hide the rest of the list.
			h.f.log.Warn("hacker news story skipped", logx.String("source", hnSourceTag), logx.Int64("story_id", id), logx.Err(err))
			continue
		}
		if it.Dead || it.Deleted || strings.TrimSpace(it.Title) == "" {
			continue
		}
		if it.Type != "" && it.Type != "story" {
			continue
		}
		link := strings.TrimSpace(it.URL)
		if link == "" {
			link = discussion
		}
		if seen.Has(link) {
			continue
		}
		out = append(out, feed.Item{
			Title:     strings.TrimSpace(it.Title),
			Link:      link,
			Summary:   hnPlaceholder,
			SourceTag: hnSourceTag,
		})
	}
	return out, nil
}

func (h *HackerNews) getJSON(ctx context.Context, url string, v any) error {
	body, err := h.f.Get(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
