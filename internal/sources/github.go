package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"newsrelay/internal/feed"
)

const (
	githubBaseURL   = "https://github.com"
	githubSourceTag = "GitHub Trending"
)

// GitHubTrending scrapes the daily trending repositories page.
type GitHubTrending struct {
	language string
	baseURL  string
	f        *Fetcher
}

// NewGitHubTrending builds a trending source for language ("" for all).
// baseURL defaults to https://github.com.
func NewGitHubTrending(language, baseURL string, f *Fetcher) *GitHubTrending {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = githubBaseURL
	}
	return &GitHubTrending{language: strings.TrimSpace(language), baseURL: baseURL, f: f}
}

func (g *GitHubTrending) Name() string {
	if g.language == "" {
		return githubSourceTag
	}
	return githubSourceTag + " (" + g.language + ")"
}

// URL returns the trending page address.
func (g *GitHubTrending) URL() string {
	if slug := languageSlug(g.language); slug != "" {
		return g.baseURL + "/trending/" + slug + "?since=daily"
	}
	return g.baseURL + "/trending?since=daily"
}

// languageSlug turns "Natural Language Processing" into "natural-language-processing".
func languageSlug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

func (g *GitHubTrending) Fetch(ctx context.Context, seen feed.Set, limit int) ([]feed.Item, error) {
	limit = limitOrDefault(limit)

	body, err := g.f.Get(ctx, g.URL())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse trending page: %w", err)
	}

	out := make([]feed.Item, 0, limit)
	doc.Find("article.Box-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if len(out) >= limit {
			return false
		}
		a := row.Find("h2 a").First()
		href, ok := a.Attr("href")
		repo := strings.Trim(strings.TrimSpace(href), "/")
		if !ok || repo == "" {
			return true
		}
		link := githubBaseURL + "/" + repo
		if seen.Has(link) {
			return true
		}
		// The anchor renders as "owner /\n repo".
		title := strings.Join(strings.Fields(a.Text()), "")
		if title == "" {
			title = repo
		}
		desc := strings.Join(strings.Fields(row.Find("p").First().Text()), " ")
		if desc == "" {
			desc = "No description available."
		}
		out = append(out, feed.Item{
			Title:     title,
			Link:      link,
			Summary:   truncateRunes(desc, maxSummaryRunes),
			SourceTag: githubSourceTag,
		})
		return true
	})
	return out, nil
}
