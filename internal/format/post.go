// Package format renders feed items as Telegram HTML posts.
package format

import (
	"strings"
	"unicode/utf8"

	"newsrelay/internal/feed"
)

// MaxPostRunes is Telegram's message length limit.
const MaxPostRunes = 4096

// Formatter renders posts for one channel.
type Formatter struct {
	// Footer is the channel handle shown at the bottom of each post (e.g. "@AI_Nexus_RSS").
	Footer string
}

// Post renders it as Telegram HTML.
//
// Layout:
//
//	<emoji> <b>title</b>
//
//	summary
//
//	🔗 <a href="link">Read More</a>
//
//	📣 Channel: footer
//
// The summary is trimmed first when the post would exceed MaxPostRunes.
func (f Formatter) Post(it feed.Item) string {
	head := H(Emoji(it.SourceTag) + " ").String() + B(strings.TrimSpace(it.Title)).String()
	link := "🔗 " + Link("Read More", it.ID()).String()
	var foot string
	if s := strings.TrimSpace(f.Footer); s != "" {
		foot = "📣 Channel: " + Esc(s).String()
	}

	summary := cleanSummary(it.Summary)
	build := func(summary string) string {
		return JoinH("\n\n", H(head), Esc(summary), H(link), H(foot)).String()
	}

	out := build(summary)
	if utf8.RuneCountInString(out) <= MaxPostRunes || summary == "" {
		return out
	}

	// Escaping can grow the text, so search on the rendered length.
	rs := []rune(summary)
	shortened := func(n int) string {
		t := strings.TrimSpace(string(rs[:n]))
		if t == "" {
			return ""
		}
		return t + "…"
	}
	lo, hi := 0, len(rs)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if utf8.RuneCountInString(build(shortened(mid))) <= MaxPostRunes {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return build(shortened(lo))
}

func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	// Placeholders some sources emit instead of a real description.
	switch strings.ToLower(s) {
	case "no description available.", "click to read more or join the discussion.":
		return ""
	}
	return s
}
