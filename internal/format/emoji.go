package format

import "strings"

const defaultEmoji = "📰"

// sourceEmoji is matched by case-insensitive substring against the source tag,
// first match wins.
var sourceEmoji = []struct {
	match string
	emoji string
}{
	{"hugging face", "🤗"},
	{"openai", "🧠"},
	{"reddit", "👽"},
	{"deepmind", "🔬"},
	{"gradient", "📈"},
	{"alammar", "🎨"},
	{"mit news", "🎓"},
	{"microsoft", "🪟"},
	{"nvidia", "🟩"},
	{"machinelearningmastery", "📘"},
	{"towards data science", "📊"},
	{"github", "🐙"},
	{"hacker news", "🟧"},
}

// Emoji returns the decoration used for posts coming from source.
func Emoji(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return defaultEmoji
	}
	for _, e := range sourceEmoji {
		if strings.Contains(s, e.match) {
			return e.emoji
		}
	}
	return defaultEmoji
}
