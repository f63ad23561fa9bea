// Package prompts produces the question set an analysis run sends to the
// chat model. Generation leans on the LLM for natural wording and falls back
// to deterministic templates when the model underperforms, so a run always
// gets exactly the number of prompts it asked for.
package prompts

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/pulsemetrics/brand_radar/pkg/diversity"
	"github.com/pulsemetrics/brand_radar/pkg/llm"
	"github.com/pulsemetrics/brand_radar/pkg/logger"
)

// aspects rotate deterministically through generation attempts so the prompt
// set covers the angles buyers actually compare on.
var aspects = []string{
	"pricing and cost",
	"performance",
	"security",
	"ease of use",
	"scalability",
	"integrations",
	"reliability",
	"support and documentation",
	"deployment workflow",
	"alternatives",
}

// verbPhrases seed the deterministic template fallback.
var verbPhrases = []string{
	"What are the best options for",
	"How should I evaluate",
	"Which tools are recommended for",
	"What do experts say about",
	"How can a small team handle",
}

var questionWords = map[string]bool{
	"what": true, "how": true, "why": true, "which": true, "who": true,
	"when": true, "where": true, "is": true, "are": true, "can": true,
	"does": true, "do": true, "should": true, "will": true,
}

// Generator builds prompt sets for one topic at a time.
type Generator struct {
	llm llm.Analyzer
}

func NewGenerator(analyzer llm.Analyzer) *Generator {
	return &Generator{llm: analyzer}
}

// Generate returns exactly count prompts for a topic with no diversity
// filtering. It is GenerateDiverse with a zero threshold.
func (g *Generator) Generate(ctx context.Context, topicName, topicDescription string, count int, competitorNames []string) []string {
	return g.GenerateDiverse(ctx, topicName, topicDescription, count, competitorNames, 0)
}

// GenerateDiverse returns exactly count prompts for a topic. Up to count*5
// LLM attempts run first, rejecting candidates whose word overlap with any
// accepted prompt exceeds (100 - thresholdPercent); a template fallback and
// then numbered fillers guarantee the count even when every attempt fails.
// A zero threshold disables the diversity check.
func (g *Generator) GenerateDiverse(ctx context.Context, topicName, topicDescription string, count int, competitorNames []string, thresholdPercent float64) []string {
	if count <= 0 {
		return nil
	}

	description := topicDescription
	if len(competitorNames) > 0 {
		description = fmt.Sprintf("%s (known vendors in this space: %s)", topicDescription, strings.Join(competitorNames, ", "))
	}

	var out []string
	maxAttempts := count * 5
	for attempt := 0; attempt < maxAttempts && len(out) < count; attempt++ {
		if ctx.Err() != nil {
			break
		}
		aspect := aspects[attempt%len(aspects)]
		candidate, err := g.llm.GeneratePromptCandidate(ctx, topicName, description, aspect)
		if err != nil {
			logger.Log.Debugf("prompt candidate attempt %d failed for topic %q: %v", attempt+1, topicName, err)
			continue
		}
		candidate = Clean(candidate)
		if !WellFormed(candidate) {
			continue
		}
		if thresholdPercent > 0 && !diversity.IsDiverse(candidate, out, thresholdPercent) {
			continue
		}
		out = append(out, candidate)
	}

	out = fillFromTemplates(out, topicName, count)
	out = fillNumbered(out, topicName, count)

	if len(out) > count {
		out = out[:count]
	}
	return out
}

// fillFromTemplates synthesizes "<verb phrase> <topic> <aspect>" prompts,
// cycling both lists and skipping exact duplicates, until count is reached or
// the combinations run out.
func fillFromTemplates(out []string, topicName string, count int) []string {
	combos := len(verbPhrases) * len(aspects)
	for i := 0; len(out) < count && i < combos; i++ {
		verb := verbPhrases[i%len(verbPhrases)]
		aspect := aspects[(i/len(verbPhrases))%len(aspects)]
		candidate := fmt.Sprintf("%s %s %s?", verb, topicName, aspect)
		if containsExact(out, candidate) {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// fillNumbered is the last-resort filler.
func fillNumbered(out []string, topicName string, count int) []string {
	for i := 1; len(out) < count; i++ {
		candidate := fmt.Sprintf("%s question %d", topicName, i)
		if containsExact(out, candidate) {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

func containsExact(pool []string, s string) bool {
	for _, p := range pool {
		if p == s {
			return true
		}
	}
	return false
}

// Clean strips wrapping quotes, collapses whitespace, capitalizes the first
// rune, and appends a question mark when the phrasing is interrogative but
// unterminated.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	s = string(runes)

	first := strings.ToLower(strings.Fields(s)[0])
	last := s[len(s)-1]
	if questionWords[first] && last != '?' && last != '.' && last != '!' {
		s += "?"
	}
	return s
}

// WellFormed accepts prompts of 3 to 12 words that contain a space.
func WellFormed(s string) bool {
	if !strings.Contains(s, " ") {
		return false
	}
	n := len(strings.Fields(s))
	return n >= 3 && n <= 12
}
