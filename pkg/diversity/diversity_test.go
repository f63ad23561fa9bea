package diversity

import (
	"reflect"
	"testing"
)

func TestIsDiverse(t *testing.T) {
	pool := []string{"What are the best options for static hosting pricing?"}

	if IsDiverse("What are the best options for static hosting pricing today?", pool, 30) {
		t.Error("IsDiverse() accepted a near-rephrasing, want reject")
	}
	if !IsDiverse("How do teams evaluate database reliability under load?", pool, 30) {
		t.Error("IsDiverse() rejected an unrelated prompt, want accept")
	}
	if !IsDiverse("Anything at all", nil, 30) {
		t.Error("IsDiverse() rejected against an empty pool, want accept")
	}
}

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Vercel", "vercel", 100},
		{"  Vercel ", "VERCEL", 100},
		{"Vercel", "Vercel Inc", 90},
		{"AWS Amplify", "Amplify", 90},
	}
	for _, tt := range tests {
		if got := NameSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("NameSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	// Word overlap: "Google Cloud Platform" vs "Google Cloud" shares 2 of 3 words.
	got := NameSimilarity("Google Cloud Platform", "Cloud Platform Tools")
	if got <= 0 || got >= 90 {
		t.Errorf("NameSimilarity() = %v, want partial overlap between 0 and 90", got)
	}

	if got := NameSimilarity("Netlify", "Render"); got != 0 {
		t.Errorf("NameSimilarity() = %v, want 0 for disjoint names", got)
	}
}

func TestDedupeNames(t *testing.T) {
	in := []string{"Vercel", "vercel", "Vercel Inc", "Netlify", " ", "Render"}
	got := DedupeNames(in, 70)
	want := []string{"Vercel", "Netlify", "Render"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DedupeNames() = %v, want %v", got, want)
	}
}
