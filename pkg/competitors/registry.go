// Package competitors assigns categories to competitor names and collapses
// near-duplicate candidate lists. Categories are sticky: once a competitor
// row has one, it is never recomputed.
package competitors

import (
	"context"
	"strings"
	"time"

	"github.com/pulsemetrics/brand_radar/pkg/diversity"
	"github.com/pulsemetrics/brand_radar/pkg/llm"
	"github.com/pulsemetrics/brand_radar/pkg/logger"
)

// Registry wraps the categorization policy.
type Registry struct {
	llm                 llm.Analyzer
	categorizeTimeout   time.Duration
	similarityThreshold float64
}

func NewRegistry(analyzer llm.Analyzer, categorizeTimeout time.Duration, similarityThreshold float64) *Registry {
	return &Registry{
		llm:                 analyzer,
		categorizeTimeout:   categorizeTimeout,
		similarityThreshold: similarityThreshold,
	}
}

// Dedupe collapses candidate names that are too similar to ones already kept.
func (r *Registry) Dedupe(names []string) []string {
	return diversity.DedupeNames(names, r.similarityThreshold)
}

// Categorize asks the model for a category, bounded by the categorization
// timeout; any failure falls back to keyword heuristics over the name.
func (r *Registry) Categorize(ctx context.Context, name string) string {
	callCtx, cancel := context.WithTimeout(ctx, r.categorizeTimeout)
	defer cancel()

	category, err := r.llm.CategorizeCompetitor(callCtx, name)
	if err == nil && category != "" {
		return category
	}
	if err != nil {
		logger.Log.Debugf("categorization call failed for %q, using keyword fallback: %v", name, err)
	}
	return HeuristicCategory(name)
}

// HeuristicCategory maps a competitor name to a category by keyword. The
// buckets mirror what the model usually answers for the same names.
func HeuristicCategory(name string) string {
	n := strings.ToLower(name)

	switch {
	case containsAny(n, "cloud", "aws", "azure"):
		return "Cloud Platform"
	case containsAny(n, "platform", "service", "deploy", "hosting", "app", "web"):
		return "Platform as a Service"
	case containsAny(n, "database", "db", "sql", "postgres", "mysql", "redis"):
		return "Database Service"
	case containsAny(n, "cdn", "edge", "cloudflare"):
		return "CDN/Edge Service"
	default:
		return "Technology"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
