// Package extract mines URLs out of free-text model responses. The model
// rarely emits clean markup, so several pattern families run over the same
// text to maximize recall and the results are normalized afterwards.
package extract

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// One pattern per URL family the model has been seen to produce.
var urlPatterns = []*regexp.Regexp{
	// Protocol-qualified.
	regexp.MustCompile(`https?://[^\s<>"'\)\]]+`),
	// www-prefixed without a scheme.
	regexp.MustCompile(`\bwww\.[a-zA-Z0-9][a-zA-Z0-9.\-]*\.[a-zA-Z]{2,}(?:/[^\s<>"'\)\]]*)?`),
	// Bare domain with a path.
	regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9\-]*(?:\.[a-zA-Z0-9\-]+)+/[^\s<>"'\)\]]+`),
	// IP address forms.
	regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?(?:/[^\s<>"'\)\]]*)?`),
	// Local development hosts.
	regexp.MustCompile(`\blocalhost(?::\d+)?(?:/[^\s<>"'\)\]]*)?`),
}

const trailingPunct = `.,;:!?'"` + "`" + `)]}>`

// Placeholder hosts that never count as real citations.
var placeholderHosts = map[string]bool{
	"example.com": true,
	"localhost":   true,
}

type match struct {
	pos int
	url string
}

// URLs returns every distinct, parseable URL in text, normalized to an
// https:// form, in first-seen order. Placeholder hosts and hosts shorter
// than three characters are discarded.
func URLs(text string) []string {
	var matches []match
	for _, re := range urlPatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			matches = append(matches, match{pos: loc[0], url: text[loc[0]:loc[1]]})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].pos < matches[j].pos })

	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		normalized, ok := Normalize(m.url)
		if !ok || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

// Normalize cleans one raw candidate: trailing punctuation is stripped, a
// missing scheme becomes https://, a leading www. is dropped, and the result
// must survive URL parsing with a plausible host.
func Normalize(raw string) (string, bool) {
	raw = strings.TrimRight(raw, trailingPunct)
	if raw == "" {
		return "", false
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}

	u.Host = strings.TrimPrefix(u.Host, "www.")
	host := u.Hostname()
	if len(host) < 3 || placeholderHosts[host] {
		return "", false
	}

	return u.String(), true
}

// Domain returns the bare hostname for a URL, without any www. prefix, or ""
// when the URL does not parse.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
