// Package sources groups cited URLs by domain and derives the representative
// URL and human-readable title a Source row carries.
package sources

import (
	"net/url"
	"strings"

	"github.com/pulsemetrics/brand_radar/pkg/extract"
)

// docPathMarkers order the representative-URL preference: a URL whose path
// contains an earlier marker beats any URL matching a later one.
var docPathMarkers = []string{"/docs", "/api", "/developer", "/guide", "/tutorial"}

// placeholder domains are never tracked.
var placeholderDomains = map[string]bool{
	"example.com": true,
	"localhost":   true,
}

// domainTitles maps well-known hosts to display labels.
var domainTitles = map[string]string{
	"github.com":           "GitHub",
	"stackoverflow.com":    "Stack Overflow",
	"medium.com":           "Medium",
	"reddit.com":           "Reddit",
	"youtube.com":          "YouTube",
	"news.ycombinator.com": "Hacker News",
	"dev.to":               "DEV Community",
	"wikipedia.org":        "Wikipedia",
	"en.wikipedia.org":     "Wikipedia",
	"learn.microsoft.com":  "Microsoft Learn",
	"docs.microsoft.com":   "Microsoft Docs",
	"aws.amazon.com":       "AWS",
	"cloud.google.com":     "Google Cloud",
	"azure.microsoft.com":  "Microsoft Azure",
	"npmjs.com":            "npm Registry",
	"pypi.org":             "PyPI",
	"gitlab.com":           "GitLab",
	"bitbucket.org":        "Bitbucket",
	"quora.com":            "Quora",
	"linkedin.com":         "LinkedIn",
	"twitter.com":          "Twitter",
	"x.com":                "X",
}

// Grouped is one domain with every URL cited against it in one response, in
// first-seen order.
type Grouped struct {
	Domain string
	URLs   []string
}

// GroupByDomain buckets urls by hostname, in first-seen domain order.
// Domains that are empty, shorter than three characters, or placeholders are
// discarded.
func GroupByDomain(urls []string) []Grouped {
	index := make(map[string]int)
	var out []Grouped
	for _, u := range urls {
		domain := extract.Domain(u)
		if len(domain) < 3 || placeholderDomains[domain] {
			continue
		}
		if i, ok := index[domain]; ok {
			out[i].URLs = append(out[i].URLs, u)
			continue
		}
		index[domain] = len(out)
		out = append(out, Grouped{Domain: domain, URLs: []string{u}})
	}
	return out
}

// RepresentativeURL prefers the first URL whose path contains a documentation
// marker, in marker precedence order, else the first URL.
func RepresentativeURL(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	for _, marker := range docPathMarkers {
		for _, u := range urls {
			parsed, err := url.Parse(u)
			if err != nil {
				continue
			}
			if strings.Contains(parsed.Path, marker) {
				return u
			}
		}
	}
	return urls[0]
}

// TitleForDomain derives a display title once, at Source creation. Known
// hosts use the lookup table; a docs. host reads as documentation; everything
// else falls back to a TLD-flavored label.
func TitleForDomain(domain string) string {
	if title, ok := domainTitles[domain]; ok {
		return title
	}

	labels := strings.Split(domain, ".")
	name := capitalize(labels[0])

	if labels[0] == "docs" && len(labels) > 1 {
		return capitalize(labels[1]) + " Documentation"
	}

	switch {
	case strings.HasSuffix(domain, ".org"):
		return name + " Organization"
	case strings.HasSuffix(domain, ".edu"):
		return name + " Educational Resource"
	case strings.HasSuffix(domain, ".gov"):
		return name + " Government Resource"
	case strings.HasSuffix(domain, ".io"), strings.HasSuffix(domain, ".app"), strings.HasSuffix(domain, ".dev"):
		return name + " Platform"
	default:
		return name + " Website"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
