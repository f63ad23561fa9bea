package model

import "time"

// Topic is a thematic grouping under which prompts are generated.
type Topic struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   time.Time
}

// Prompt is a single question sent to the chat model. TopicID is 0 when the
// prompt was supplied externally without a topic.
type Prompt struct {
	ID        int    `json:"id"`
	TopicID   int    `json:"topic_id,omitempty"`
	Text      string `json:"text"`
	CreatedAt time.Time
}

// Response is the model's answer to one prompt, with the signals extracted
// from it. Never mutated after creation.
type Response struct {
	ID             int      `json:"id"`
	PromptID       int      `json:"prompt_id"`
	Text           string   `json:"text"`
	BrandMentioned bool     `json:"brand_mentioned"`
	Competitors    []string `json:"competitors"`
	Sources        []string `json:"sources"`
	CreatedAt      time.Time
}

// Competitor tracks a rival brand spotted in responses. Name lookup is exact
// and case-sensitive.
type Competitor struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	MentionCount  int    `json:"mention_count"`
	LastMentioned time.Time
}

// Source is one cited domain with a representative URL. CitationCount goes up
// once per response citing the domain, regardless of how many URLs on it
// appeared.
type Source struct {
	ID            int    `json:"id"`
	Domain        string `json:"domain"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	CitationCount int    `json:"citation_count"`
	LastCited     time.Time
}

// Analytics is the rollup snapshot written at the end of a successful run.
type Analytics struct {
	ID               int       `json:"id"`
	Date             time.Time `json:"date"`
	TotalPrompts     int       `json:"total_prompts"`
	BrandMentionRate float64   `json:"brand_mention_rate"`
	TopCompetitor    string    `json:"top_competitor,omitempty"`
	TotalSources     int       `json:"total_sources"`
	TotalDomains     int       `json:"total_domains"`
}

// AnalysisStatus is the orchestrator's state machine position.
type AnalysisStatus string

const (
	StatusInitializing      AnalysisStatus = "initializing"
	StatusScraping          AnalysisStatus = "scraping"
	StatusGeneratingPrompts AnalysisStatus = "generating_prompts"
	StatusTestingPrompts    AnalysisStatus = "testing_prompts"
	StatusAnalyzing         AnalysisStatus = "analyzing"
	StatusComplete          AnalysisStatus = "complete"
	StatusError             AnalysisStatus = "error"
)

// AnalysisProgress is the snapshot reported to pollers and callbacks. It lives
// only in process memory and is overwritten on every update.
type AnalysisProgress struct {
	Status           AnalysisStatus `json:"status"`
	Message          string         `json:"message"`
	Progress         int            `json:"progress"`
	TotalPrompts     int            `json:"total_prompts,omitempty"`
	CompletedPrompts int            `json:"completed_prompts,omitempty"`
}

// PromptInput is an externally supplied prompt for the saved-prompts branch.
type PromptInput struct {
	Text  string `json:"text"`
	Topic string `json:"topic,omitempty"`
}

// SourceInfo is a structured source returned by the model classifier.
type SourceInfo struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Domain  string `json:"domain"`
	Snippet string `json:"snippet,omitempty"`
}

// AnalysisResult is one prompt's outcome from the chat model: the free-text
// answer plus the signals classified out of it.
type AnalysisResult struct {
	Response       string       `json:"response"`
	BrandMentioned bool         `json:"brand_mentioned"`
	Competitors    []string     `json:"competitors"`
	Sources        []SourceInfo `json:"sources"`
}

// TopicSuggestion is a topic derived from scraped site content.
type TopicSuggestion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Export is the full dump of persisted entities served by the export endpoint.
type Export struct {
	Topics      []Topic      `json:"topics"`
	Prompts     []Prompt     `json:"prompts"`
	Responses   []Response   `json:"responses"`
	Competitors []Competitor `json:"competitors"`
	Sources     []Source     `json:"sources"`
	Analytics   []Analytics  `json:"analytics"`
}
