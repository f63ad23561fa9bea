package sources

import (
	"reflect"
	"testing"
)

func TestGroupByDomain(t *testing.T) {
	urls := []string{
		"https://vercel.com/pricing",
		"https://netlify.com/docs",
		"https://vercel.com/docs",
		"https://example.com/demo",
	}
	got := GroupByDomain(urls)
	want := []Grouped{
		{Domain: "vercel.com", URLs: []string{"https://vercel.com/pricing", "https://vercel.com/docs"}},
		{Domain: "netlify.com", URLs: []string{"https://netlify.com/docs"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GroupByDomain() = %v, want %v", got, want)
	}
}

func TestRepresentativeURL(t *testing.T) {
	tests := []struct {
		name string
		urls []string
		want string
	}{
		{
			"docs beats guide",
			[]string{"https://x.com/guide/intro", "https://x.com/docs/intro"},
			"https://x.com/docs/intro",
		},
		{
			"api beats tutorial",
			[]string{"https://x.com/tutorial/one", "https://x.com/api/v2"},
			"https://x.com/api/v2",
		},
		{
			"no marker falls back to first",
			[]string{"https://x.com/pricing", "https://x.com/blog"},
			"https://x.com/pricing",
		},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RepresentativeURL(tt.urls); got != tt.want {
				t.Errorf("RepresentativeURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTitleForDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"stackoverflow.com", "Stack Overflow"},
		{"github.com", "GitHub"},
		{"docs.railway.com", "Railway Documentation"},
		{"mozilla.org", "Mozilla Organization"},
		{"stanford.edu", "Stanford Educational Resource"},
		{"nist.gov", "Nist Government Resource"},
		{"fly.io", "Fly Platform"},
		{"unknownvendor.com", "Unknownvendor Website"},
	}
	for _, tt := range tests {
		if got := TitleForDomain(tt.domain); got != tt.want {
			t.Errorf("TitleForDomain(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}
