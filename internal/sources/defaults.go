package sources

// DefaultSpecs is the source list used when the config names none.
func DefaultSpecs() []Spec {
	rss := []struct{ name, url string }{
		{"Hugging Face Blog", "https://hf.co/blog/feed.xml"},
		{"Hugging Face Paper", "https://jamesg.blog/hf-papers.xml"},
		{"ML Reddit", "https://www.reddit.com/r/MachineLearning/.rss"},
		{"OpenAI Blog", "https://openai.com/blog/rss.xml"},
		{"The Gradient", "https://thegradient.pub/rss/"},
		{"Jay Alammar", "https://jalammar.github.io/feed.xml"},
		{"DeepMind Blog", "https://deepmind.google/blog/rss.xml"},
		{"AI From MIT News", "https://news.mit.edu/rss/topic/artificial-intelligence2"},
		{"General News From MIT News", "https://www.technologyreview.com/feed/"},
		{"Microsoft AI Blog", "https://blogs.microsoft.com/ai/feed/"},
		{"machinelearningmastery Blog", "https://machinelearningmastery.com/blog/feed/"},
		{"Nvidia AI Blog", "https://blogs.nvidia.com/blog/category/ai/feed/"},
		{"Towards Data Science", "https://towardsdatascience.com/feed/"},
	}
	languages := []string{
		"python", "jupyter-notebook", "google colab", "Artificial Intelligence", "AI",
		"machine-learning", "deep-learning", "nlp", "Natural Language Processing",
		"CV", "Computer Vision", "Data Science", "Awesome Lists",
	}

	out := make([]Spec, 0, len(rss)+len(languages)+1)
	for _, r := range rss {
		out = append(out, Spec{Kind: KindRSS, Name: r.name, URL: r.url, Limit: DefaultLimit})
	}
	for _, lang := range languages {
		out = append(out, Spec{Kind: KindGitHub, Language: lang, Limit: DefaultLimit})
	}
	out = append(out, Spec{Kind: KindHackerNews, Limit: DefaultLimit})
	return out
}
