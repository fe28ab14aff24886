// Package main is the newsrelay CLI.
//
// newsrelay collects items from RSS feeds, GitHub trending and Hacker News
// and posts every item it has not posted before to one Telegram channel.
//
// Usage:
//
//	newsrelay run
//	newsrelay serve --config /etc/newsrelay/newsrelay.yaml
//
// See --help for all available options.
package main

func main() {
	Execute()
}
