// Package llm wraps the chat completion service behind the small set of
// operations the analysis pipeline needs. Every call goes through one shared
// rate limiter and a retry loop with exponential backoff; structured output
// is requested as strict JSON and any markdown fencing is stripped before
// unmarshalling.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/pulsemetrics/brand_radar/pkg/config"
	"github.com/pulsemetrics/brand_radar/pkg/logger"
	"github.com/pulsemetrics/brand_radar/pkg/model"
)

// Analyzer is the contract the pipeline consumes. The concrete Client talks
// to a real chat service; tests substitute scripted fakes.
type Analyzer interface {
	AnalyzePromptResponse(ctx context.Context, promptText string) (*model.AnalysisResult, error)
	ExtractCompetitors(ctx context.Context, text, brandName string) ([]string, error)
	ExtractSources(ctx context.Context, text string) ([]model.SourceInfo, error)
	CategorizeCompetitor(ctx context.Context, name string) (string, error)
	GeneratePromptCandidate(ctx context.Context, topic, description, aspect string) (string, error)
	SuggestTopics(ctx context.Context, siteContent string, count int) ([]model.TopicSuggestion, error)
}

// Client is the production Analyzer backed by an OpenAI-compatible endpoint.
type Client struct {
	chatModel         einomodel.ChatModel
	limiter           *rate.Limiter
	brand             string
	maxRetries        int
	baseDelay         time.Duration
	analysisTimeout   time.Duration
	categorizeTimeout time.Duration
}

var _ Analyzer = (*Client)(nil)

// NewClient builds the chat model and the shared limiter from config.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	limit := rate.Limit(float64(cfg.Ratelim.RPM) / 60.0)
	limiter := rate.NewLimiter(limit, cfg.Ratelim.QPS)

	return &Client{
		chatModel:         chatModel,
		limiter:           limiter,
		brand:             cfg.Brand.Name,
		maxRetries:        cfg.Analysis.MaxRetries,
		baseDelay:         time.Duration(cfg.Analysis.RetryBaseDelaySec) * time.Second,
		analysisTimeout:   time.Duration(cfg.Analysis.AnalysisTimeoutSec) * time.Second,
		categorizeTimeout: time.Duration(cfg.Analysis.CategorizeTimeoutSec) * time.Second,
	}, nil
}

// generate runs one chat call with rate limiting, a per-call timeout, and up
// to maxRetries retries after the initial try, backing off base, 2*base,
// 4*base between attempts.
func (c *Client) generate(ctx context.Context, system, user string, timeout time.Duration) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: user},
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.chatModel.Generate(callCtx, messages)
		cancel()
		if err == nil {
			return strings.TrimSpace(resp.Content), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < c.maxRetries {
			delay := c.baseDelay * time.Duration(1<<attempt)
			logger.Log.Warnf("llm call failed (attempt %d/%d): %v, retrying in %v", attempt+1, c.maxRetries+1, err, delay)
			time.Sleep(delay)
		}
	}
	return "", fmt.Errorf("llm call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// cleanJSON strips markdown code fences some models wrap around JSON output.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

const classifySystem = "You are a JSON generator. Output only a JSON object, no markdown, no commentary."

const classifyPromptTpl = `Analyze the following AI assistant response about the software market.
Brand under measurement: %q.

Return strictly this JSON shape:
{
	"brand_mentioned": true,
	"competitors": ["Name"],
	"sources": [{"title": "...", "url": "https://...", "domain": "...", "snippet": "..."}]
}

Rules for competitors:
- Include ONLY direct market competitors of the brand.
- Never include platforms, tools, partners, or examples mentioned in passing.
- When uncertain whether a name is a competitor, exclude it.

Rules for sources:
- Fully-qualified, deduplicated URLs of any legitimate resource type (docs, forums, videos, papers).
- Exclude placeholder or obviously invalid domains.

Response to analyze:
%s`

// AnalyzePromptResponse sends promptText to the chat model as a user would,
// then classifies the answer for brand/competitor mentions and cited sources.
// A failed answer call is returned as an error so the orchestrator can apply
// its fallback; a failed classification degrades to an empty signal set.
func (c *Client) AnalyzePromptResponse(ctx context.Context, promptText string) (*model.AnalysisResult, error) {
	answer, err := c.generate(ctx, "You are a helpful, knowledgeable assistant. Answer naturally and mention specific products, vendors and links where relevant.", promptText, c.analysisTimeout)
	if err != nil {
		return nil, err
	}

	result := &model.AnalysisResult{Response: answer}

	raw, err := c.generate(ctx, classifySystem, fmt.Sprintf(classifyPromptTpl, c.brand, answer), c.analysisTimeout)
	if err != nil {
		logger.Log.Warnf("classification call failed, keeping raw response without signals: %v", err)
		return result, nil
	}

	var parsed struct {
		BrandMentioned bool               `json:"brand_mentioned"`
		Competitors    []string           `json:"competitors"`
		Sources        []model.SourceInfo `json:"sources"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &parsed); err != nil {
		logger.Log.Warnf("classification output was not valid JSON: %v", err)
		return result, nil
	}

	result.BrandMentioned = parsed.BrandMentioned
	result.Competitors = parsed.Competitors
	result.Sources = parsed.Sources
	return result, nil
}

const competitorsPromptTpl = `List the direct market competitors of %q mentioned in the text below.
Include ONLY direct competitors: never platforms, tools, partners, or examples.
When uncertain, exclude the name. Return strictly a JSON array of strings, e.g. ["Name A", "Name B"].

Text:
%s`

// ExtractCompetitors pulls direct-competitor names from arbitrary text.
// Malformed model output degrades to an empty list rather than an error.
func (c *Client) ExtractCompetitors(ctx context.Context, text, brandName string) ([]string, error) {
	if brandName == "" {
		brandName = c.brand
	}
	raw, err := c.generate(ctx, classifySystem, fmt.Sprintf(competitorsPromptTpl, brandName, text), c.analysisTimeout)
	if err != nil {
		return nil, err
	}

	var names []string
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &names); err != nil {
		logger.Log.Warnf("competitor extraction output was not valid JSON: %v", err)
		return nil, nil
	}
	return names, nil
}

const sourcesPromptTpl = `Extract every cited source from the text below.
Sources must be fully-qualified, deduplicated URLs of legitimate resources (documentation, forums, videos, papers).
Exclude placeholder or invalid domains. Return strictly a JSON array:
[{"title": "...", "url": "https://...", "domain": "...", "snippet": "..."}]

Text:
%s`

// ExtractSources pulls structured source citations from arbitrary text.
func (c *Client) ExtractSources(ctx context.Context, text string) ([]model.SourceInfo, error) {
	raw, err := c.generate(ctx, classifySystem, fmt.Sprintf(sourcesPromptTpl, text), c.analysisTimeout)
	if err != nil {
		return nil, err
	}

	var sources []model.SourceInfo
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &sources); err != nil {
		logger.Log.Warnf("source extraction output was not valid JSON: %v", err)
		return nil, nil
	}
	return sources, nil
}

// CategorizeCompetitor asks for a short category label for a competitor name.
// Bounded by the shorter categorization timeout; callers keep their own
// keyword fallback for when this errors.
func (c *Client) CategorizeCompetitor(ctx context.Context, name string) (string, error) {
	prompt := fmt.Sprintf(`Categorize the company or product %q with a single short phrase such as "Cloud Platform", "Database Service" or "CDN/Edge Service". Answer with the category only, no punctuation.`, name)
	raw, err := c.generate(ctx, "You answer with a single short category phrase and nothing else.", prompt, c.categorizeTimeout)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(raw), `"'.`), nil
}

const candidatePromptTpl = `Write ONE natural question a real user might ask an AI assistant about %s, focused on %s.
Topic background: %s
The question must be short (3 to 12 words), conversational, and must not mention any specific brand.
Answer with the question text only.`

// GeneratePromptCandidate requests a single prompt themed around one aspect.
func (c *Client) GeneratePromptCandidate(ctx context.Context, topic, description, aspect string) (string, error) {
	if description == "" {
		description = topic
	}
	return c.generate(ctx, "You write short, natural user questions. Output the question only.", fmt.Sprintf(candidatePromptTpl, topic, aspect, description), c.analysisTimeout)
}

const topicsPromptTpl = `The text below is scraped from a product website. Derive %d analysis topics that potential
customers would ask an AI assistant about this product space.
Return strictly a JSON array: [{"name": "Topic", "description": "one sentence"}]

Website text:
%s`

// SuggestTopics derives analysis topics from scraped site content.
func (c *Client) SuggestTopics(ctx context.Context, siteContent string, count int) ([]model.TopicSuggestion, error) {
	raw, err := c.generate(ctx, classifySystem, fmt.Sprintf(topicsPromptTpl, count, siteContent), c.analysisTimeout)
	if err != nil {
		return nil, err
	}

	var topics []model.TopicSuggestion
	if err := json.Unmarshal([]byte(cleanJSON(raw)), &topics); err != nil {
		return nil, fmt.Errorf("topic suggestion output was not valid JSON: %w", err)
	}
	if len(topics) > count {
		topics = topics[:count]
	}
	return topics, nil
}
