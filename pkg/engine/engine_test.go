package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulsemetrics/brand_radar/pkg/config"
	"github.com/pulsemetrics/brand_radar/pkg/model"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu          sync.Mutex
	topics      []model.Topic
	prompts     []model.Prompt
	responses   []model.Response
	competitors []model.Competitor
	sources     []model.Source
	analytics   []model.Analytics
	cleared     bool
	nextID      int
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) id() int {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateTopic(ctx context.Context, name, description string) (*model.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := model.Topic{ID: f.id(), Name: name, Description: description}
	f.topics = append(f.topics, t)
	return &t, nil
}

func (f *fakeStore) GetTopicByName(ctx context.Context, name string) (*model.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.topics {
		if f.topics[i].Name == name {
			t := f.topics[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreatePrompt(ctx context.Context, text string, topicID int) (*model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := model.Prompt{ID: f.id(), TopicID: topicID, Text: text}
	f.prompts = append(f.prompts, p)
	return &p, nil
}

func (f *fakeStore) ListPrompts(ctx context.Context) ([]model.Prompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Prompt(nil), f.prompts...), nil
}

func (f *fakeStore) CreateResponse(ctx context.Context, r *model.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = f.id()
	f.responses = append(f.responses, *r)
	return nil
}

func (f *fakeStore) GetCompetitorByName(ctx context.Context, name string) (*model.Competitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.competitors {
		if f.competitors[i].Name == name {
			c := f.competitors[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateCompetitor(ctx context.Context, name, category string) (*model.Competitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := model.Competitor{ID: f.id(), Name: name, Category: category}
	f.competitors = append(f.competitors, c)
	return &c, nil
}

func (f *fakeStore) IncrementCompetitorMention(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.competitors {
		if f.competitors[i].ID == id {
			f.competitors[i].MentionCount++
			f.competitors[i].LastMentioned = time.Now()
			return nil
		}
	}
	return errors.New("competitor not found")
}

func (f *fakeStore) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Competitor(nil), f.competitors...), nil
}

func (f *fakeStore) TopCompetitor(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	top, best := "", -1
	for _, c := range f.competitors {
		if c.MentionCount > best {
			top, best = c.Name, c.MentionCount
		}
	}
	return top, nil
}

func (f *fakeStore) GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sources {
		if f.sources[i].Domain == domain {
			s := f.sources[i]
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateSource(ctx context.Context, domain, url, title string) (*model.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.Source{ID: f.id(), Domain: domain, URL: url, Title: title}
	f.sources = append(f.sources, s)
	return &s, nil
}

func (f *fakeStore) IncrementSourceCitation(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sources {
		if f.sources[i].ID == id {
			f.sources[i].CitationCount++
			f.sources[i].LastCited = time.Now()
			return nil
		}
	}
	return errors.New("source not found")
}

func (f *fakeStore) SourceStats(ctx context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, s := range f.sources {
		total += s.CitationCount
	}
	return total, len(f.sources), nil
}

func (f *fakeStore) ClearAnalysisData(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.prompts = nil
	f.responses = nil
	f.competitors = nil
	return nil
}

func (f *fakeStore) SaveAnalytics(ctx context.Context, a *model.Analytics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	f.analytics = append(f.analytics, *a)
	return nil
}

// fakeAnalyzer scripts every model call.
type fakeAnalyzer struct {
	analyze       func(promptText string) (*model.AnalysisResult, error)
	categorize    string
	categorizeErr error
	block         chan struct{}
}

func (f *fakeAnalyzer) AnalyzePromptResponse(ctx context.Context, promptText string) (*model.AnalysisResult, error) {
	if f.block != nil {
		<-f.block
	}
	if f.analyze != nil {
		return f.analyze(promptText)
	}
	return &model.AnalysisResult{Response: "nothing notable"}, nil
}

func (f *fakeAnalyzer) ExtractCompetitors(ctx context.Context, text, brandName string) ([]string, error) {
	return nil, errors.New("unavailable")
}

func (f *fakeAnalyzer) ExtractSources(ctx context.Context, text string) ([]model.SourceInfo, error) {
	return nil, errors.New("unavailable")
}

func (f *fakeAnalyzer) CategorizeCompetitor(ctx context.Context, name string) (string, error) {
	return f.categorize, f.categorizeErr
}

func (f *fakeAnalyzer) GeneratePromptCandidate(ctx context.Context, topic, description, aspect string) (string, error) {
	return "", errors.New("unavailable")
}

func (f *fakeAnalyzer) SuggestTopics(ctx context.Context, siteContent string, count int) ([]model.TopicSuggestion, error) {
	return nil, errors.New("unavailable")
}

// fakeFetcher never scrapes anything in these tests.
type fakeFetcher struct{}

func (f *fakeFetcher) FetchWebsiteText(url string) (string, error) {
	return "", errors.New("offline")
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Brand.Name = "TestBrand"
	cfg.Analysis.CompetitorSimilarityThreshold = 70
	cfg.Analysis.CategorizeTimeoutSec = 1
	// PromptDelayMs stays 0 so tests run without pacing.
	return cfg
}

func savedPrompts(n int) []model.PromptInput {
	out := make([]model.PromptInput, n)
	for i := range out {
		out[i] = model.PromptInput{Text: fmt.Sprintf("What hosting should a team pick, option %d?", i+1)}
	}
	return out
}

func TestRun_EndToEnd(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{
		analyze: func(promptText string) (*model.AnalysisResult, error) {
			return &model.AnalysisResult{
				Response:       "Many teams pick CompetitorX, see https://docs.competitorx.com/guide for setup.",
				BrandMentioned: true,
				Competitors:    []string{"CompetitorX"},
			}, nil
		},
		categorize: "Platform as a Service",
	}

	eng := New(testConfig(), store, analyzer, &fakeFetcher{}, nil)
	err := eng.Run(context.Background(), RunOptions{SavedPrompts: savedPrompts(3)})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !store.cleared {
		t.Error("Run() with saved prompts did not clear previous analysis data")
	}
	if len(store.responses) != 3 {
		t.Fatalf("Run() stored %d responses, want 3", len(store.responses))
	}
	if len(store.competitors) != 1 {
		t.Fatalf("Run() stored %d competitors, want 1", len(store.competitors))
	}
	if c := store.competitors[0]; c.Name != "CompetitorX" || c.MentionCount != 3 {
		t.Errorf("competitor = %q mentions=%d, want CompetitorX mentions=3", c.Name, c.MentionCount)
	}
	if len(store.sources) != 1 {
		t.Fatalf("Run() stored %d sources, want 1", len(store.sources))
	}
	src := store.sources[0]
	if src.Domain != "docs.competitorx.com" || src.CitationCount != 3 {
		t.Errorf("source = %q citations=%d, want docs.competitorx.com citations=3", src.Domain, src.CitationCount)
	}
	if !strings.Contains(src.Title, "Documentation") {
		t.Errorf("source title = %q, want a documentation title", src.Title)
	}

	if len(store.analytics) != 1 {
		t.Fatalf("Run() stored %d analytics rows, want 1", len(store.analytics))
	}
	a := store.analytics[0]
	if a.TotalPrompts != 3 || a.BrandMentionRate != 100 || a.TopCompetitor != "CompetitorX" {
		t.Errorf("analytics = %+v, want 3 prompts, 100%% mention rate, CompetitorX on top", a)
	}
	if a.TotalSources != 3 || a.TotalDomains != 1 {
		t.Errorf("analytics sources = %d domains = %d, want 3 and 1", a.TotalSources, a.TotalDomains)
	}

	if p := eng.Progress(); p.Status != model.StatusComplete || p.Progress != 100 {
		t.Errorf("final progress = %+v, want complete at 100", p)
	}
}

func TestRun_SecondStartRejected(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{block: make(chan struct{})}
	eng := New(testConfig(), store, analyzer, &fakeFetcher{}, nil)

	done := make(chan error, 1)
	go func() {
		done <- eng.Run(context.Background(), RunOptions{SavedPrompts: savedPrompts(1)})
	}()

	// Wait for the run to claim the slot.
	for !eng.Running() {
		time.Sleep(time.Millisecond)
	}

	if err := eng.Run(context.Background(), RunOptions{SavedPrompts: savedPrompts(1)}); !errors.Is(err, ErrAnalysisRunning) {
		t.Errorf("concurrent Run() error = %v, want ErrAnalysisRunning", err)
	}

	close(analyzer.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if eng.Running() {
		t.Error("Running() = true after the run finished")
	}
}

func TestRun_CancellationKeepsPartialResults(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{}

	var eng *Engine
	eng = New(testConfig(), store, analyzer, &fakeFetcher{}, func(p model.AnalysisProgress) {
		if p.Status == model.StatusTestingPrompts && p.CompletedPrompts == 3 {
			eng.Cancel()
		}
	})

	err := eng.Run(context.Background(), RunOptions{SavedPrompts: savedPrompts(10)})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}

	if len(store.responses) != 3 {
		t.Errorf("Run() kept %d responses after cancellation, want 3", len(store.responses))
	}
	p := eng.Progress()
	if p.Status != model.StatusError || !strings.Contains(p.Message, "cancelled") {
		t.Errorf("progress after cancel = %+v, want error status with cancellation message", p)
	}
	if eng.Running() {
		t.Error("Running() = true after cancellation")
	}
}

func TestRun_ModelFailureFallsBackToSynthetic(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{
		analyze: func(promptText string) (*model.AnalysisResult, error) {
			return nil, errors.New("api down")
		},
	}
	cfg := testConfig()
	cfg.Analysis.SyntheticMentionRate = 0 // deterministic: never mention the brand

	eng := New(cfg, store, analyzer, &fakeFetcher{}, nil)
	if err := eng.Run(context.Background(), RunOptions{SavedPrompts: savedPrompts(4)}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.responses) != 4 {
		t.Fatalf("Run() stored %d responses, want one per prompt even with the model down", len(store.responses))
	}
	for _, r := range store.responses {
		if r.Text == "" {
			t.Error("synthetic response has empty text")
		}
		if r.BrandMentioned {
			t.Error("synthetic response mentioned the brand with a zero mention rate")
		}
	}

	// The generic fallback sources still flow through aggregation.
	if len(store.sources) != 3 {
		t.Fatalf("Run() stored %d sources, want the 3 generic fallback domains", len(store.sources))
	}
	for _, s := range store.sources {
		if s.CitationCount != 4 {
			t.Errorf("source %q citations = %d, want 4", s.Domain, s.CitationCount)
		}
	}

	a := store.analytics[0]
	if a.BrandMentionRate != 0 {
		t.Errorf("analytics mention rate = %v, want 0", a.BrandMentionRate)
	}
}

func TestRun_SameDomainCitedOncePerResponse(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{
		analyze: func(promptText string) (*model.AnalysisResult, error) {
			return &model.AnalysisResult{
				Response: "Start at https://fly.io/docs/getting-started and then https://fly.io/docs/networking.",
			}, nil
		},
	}

	eng := New(testConfig(), store, analyzer, &fakeFetcher{}, nil)
	if err := eng.Run(context.Background(), RunOptions{SavedPrompts: savedPrompts(1)}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.sources) != 1 {
		t.Fatalf("Run() stored %d sources, want 1", len(store.sources))
	}
	if store.sources[0].CitationCount != 1 {
		t.Errorf("citations = %d, want 1 for two URLs on the same domain in one response", store.sources[0].CitationCount)
	}
	if len(store.responses) != 1 || len(store.responses[0].Sources) != 2 {
		t.Errorf("response sources = %v, want both URLs kept on the response", store.responses[0].Sources)
	}
}

func TestRun_FreshRunGeneratesPromptsPerTopic(t *testing.T) {
	store := newFakeStore()
	analyzer := &fakeAnalyzer{
		analyze: func(promptText string) (*model.AnalysisResult, error) {
			return &model.AnalysisResult{Response: "answer"}, nil
		},
	}
	cfg := testConfig()
	cfg.Analysis.DiversityThreshold = 30

	eng := New(cfg, store, analyzer, &fakeFetcher{}, nil)
	err := eng.Run(context.Background(), RunOptions{PromptsPerTopic: 2, NumberOfTopics: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// No website is configured and candidate generation fails, so the
	// default topics and the template fallback must still yield the full
	// prompt set.
	if len(store.topics) != 2 {
		t.Errorf("Run() created %d topics, want 2 defaults", len(store.topics))
	}
	if len(store.prompts) != 4 {
		t.Errorf("Run() created %d prompts, want 2 per topic", len(store.prompts))
	}
	if len(store.responses) != 4 {
		t.Errorf("Run() stored %d responses, want 4", len(store.responses))
	}
	for _, p := range store.prompts {
		if p.TopicID == 0 {
			t.Errorf("prompt %q has no topic", p.Text)
		}
	}
}

func TestRun_UseExistingPrompts(t *testing.T) {
	store := newFakeStore()
	store.prompts = []model.Prompt{
		{ID: 1, Text: "What is the best static host?"},
		{ID: 2, Text: "How do teams compare deploy speeds?"},
	}
	analyzer := &fakeAnalyzer{
		analyze: func(promptText string) (*model.AnalysisResult, error) {
			return &model.AnalysisResult{Response: "answer", BrandMentioned: true}, nil
		},
	}

	eng := New(testConfig(), store, analyzer, &fakeFetcher{}, nil)
	if err := eng.Run(context.Background(), RunOptions{UseExistingPrompts: true}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if store.cleared {
		t.Error("Run() with existing prompts must not clear analysis data")
	}
	if len(store.prompts) != 2 {
		t.Errorf("Run() created new prompts, want the 2 existing ones reused")
	}
	if len(store.responses) != 2 {
		t.Errorf("Run() stored %d responses, want 2", len(store.responses))
	}
	if a := store.analytics[0]; a.TotalPrompts != 2 || a.BrandMentionRate != 100 {
		t.Errorf("analytics = %+v, want 2 prompts at 100%%", a)
	}
}
