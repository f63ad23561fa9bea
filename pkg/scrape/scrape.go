// Package scrape fetches the brand's website text used to seed topic
// generation.
package scrape

import (
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

// maxContentLength caps the text handed to the topic suggester, in runes.
const maxContentLength = 2000

// Fetcher retrieves readable text from a page.
type Fetcher struct {
	timeout time.Duration
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{timeout: timeout}
}

// FetchWebsiteText downloads the page, extracts the readable article text,
// collapses whitespace and truncates to maxContentLength.
func (f *Fetcher) FetchWebsiteText(url string) (string, error) {
	article, err := readability.FromURL(url, f.timeout)
	if err != nil {
		return "", err
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	return truncate(text, maxContentLength), nil
}

// truncate caps s at limit runes without splitting a multi-byte character.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
