// Package engine runs the analysis pipeline: it assembles the prompt set,
// drives each prompt through the chat model, extracts and aggregates the
// signals, and writes the final analytics rollup. A single engine instance
// allows one run at a time; everything the run touches is written by that
// one goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pulsemetrics/brand_radar/pkg/competitors"
	"github.com/pulsemetrics/brand_radar/pkg/config"
	"github.com/pulsemetrics/brand_radar/pkg/extract"
	"github.com/pulsemetrics/brand_radar/pkg/llm"
	"github.com/pulsemetrics/brand_radar/pkg/logger"
	"github.com/pulsemetrics/brand_radar/pkg/model"
	"github.com/pulsemetrics/brand_radar/pkg/prompts"
	"github.com/pulsemetrics/brand_radar/pkg/sources"
)

// ErrAnalysisRunning is returned when a start request arrives while a run is
// active. The caller should poll progress instead of queueing.
var ErrAnalysisRunning = errors.New("analysis already running")

// ErrCancelled is returned when a run stops at a cancellation check. Data
// persisted before the check stays.
var ErrCancelled = errors.New("analysis cancelled by user")

const cancelledMessage = "Analysis cancelled by user"

// Store is the persistence surface the run needs. *storage.Storage satisfies
// it; tests use in-memory fakes.
type Store interface {
	CreateTopic(ctx context.Context, name, description string) (*model.Topic, error)
	GetTopicByName(ctx context.Context, name string) (*model.Topic, error)
	CreatePrompt(ctx context.Context, text string, topicID int) (*model.Prompt, error)
	ListPrompts(ctx context.Context) ([]model.Prompt, error)
	CreateResponse(ctx context.Context, r *model.Response) error
	GetCompetitorByName(ctx context.Context, name string) (*model.Competitor, error)
	CreateCompetitor(ctx context.Context, name, category string) (*model.Competitor, error)
	IncrementCompetitorMention(ctx context.Context, id int) error
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	TopCompetitor(ctx context.Context) (string, error)
	GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error)
	CreateSource(ctx context.Context, domain, url, title string) (*model.Source, error)
	IncrementSourceCitation(ctx context.Context, id int) error
	SourceStats(ctx context.Context) (totalCitations, totalDomains int, err error)
	ClearAnalysisData(ctx context.Context) error
	SaveAnalytics(ctx context.Context, a *model.Analytics) error
}

// SiteFetcher seeds topic generation with the brand's website text.
type SiteFetcher interface {
	FetchWebsiteText(url string) (string, error)
}

// RunOptions selects the prompt-sourcing branch and the run sizing.
type RunOptions struct {
	UseExistingPrompts bool
	SavedPrompts       []model.PromptInput
	PromptsPerTopic    int
	NumberOfTopics     int
}

// Engine is the orchestrator. One instance, one run at a time.
type Engine struct {
	cfg       *config.Config
	store     Store
	llm       llm.Analyzer
	fetcher   SiteFetcher
	generator *prompts.Generator
	registry  *competitors.Registry
	tracker   *Tracker
	limiter   *rate.Limiter

	running   atomic.Bool
	mu        sync.Mutex
	cancelRun context.CancelFunc

	rng *rand.Rand
}

// New wires the engine. callback may be nil; it receives every progress
// update when set.
func New(cfg *config.Config, store Store, analyzer llm.Analyzer, fetcher SiteFetcher, callback func(model.AnalysisProgress)) *Engine {
	delay := time.Duration(cfg.Analysis.PromptDelayMs) * time.Millisecond
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	} else {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		llm:       analyzer,
		fetcher:   fetcher,
		generator: prompts.NewGenerator(analyzer),
		registry: competitors.NewRegistry(
			analyzer,
			time.Duration(cfg.Analysis.CategorizeTimeoutSec)*time.Second,
			cfg.Analysis.CompetitorSimilarityThreshold,
		),
		tracker: NewTracker(callback),
		limiter: limiter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Progress returns the latest snapshot for pollers.
func (e *Engine) Progress() model.AnalysisProgress {
	return e.tracker.Current()
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Cancel requests cooperative cancellation of the active run. The run stops
// at its next per-prompt check; an in-flight model call is not aborted.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancelRun
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run executes a full analysis and blocks until it finishes. A second Run
// while one is active returns ErrAnalysisRunning immediately.
func (e *Engine) Run(ctx context.Context, opts RunOptions) error {
	return e.start(ctx, opts, false)
}

// StartAsync launches the run on its own goroutine. The busy check happens
// synchronously so callers get an immediate ErrAnalysisRunning.
func (e *Engine) StartAsync(opts RunOptions) error {
	return e.start(context.Background(), opts, true)
}

func (e *Engine) start(ctx context.Context, opts RunOptions, async bool) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAnalysisRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelRun = cancel
	e.mu.Unlock()

	finish := func() {
		cancel()
		e.mu.Lock()
		e.cancelRun = nil
		e.mu.Unlock()
		e.running.Store(false)
	}

	if async {
		go func() {
			defer finish()
			if err := e.run(runCtx, opts); err != nil && !errors.Is(err, ErrCancelled) {
				logger.Log.Errorf("analysis run failed: %v", err)
			}
		}()
		return nil
	}

	defer finish()
	return e.run(runCtx, opts)
}

// promptRef is one prompt in the assembled run list. ID is zero until the
// per-prompt loop persists it.
type promptRef struct {
	id      int
	text    string
	topicID int
}

func (e *Engine) run(ctx context.Context, opts RunOptions) error {
	e.update(model.StatusInitializing, "Starting analysis", 0, 0, 0)

	refs, err := e.assemblePrompts(ctx, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrCancelled) {
			e.update(model.StatusError, cancelledMessage, 0, 0, 0)
			return ErrCancelled
		}
		e.update(model.StatusError, err.Error(), 0, 0, 0)
		return err
	}

	total := len(refs)
	completed := 0
	brandMentions := 0
	e.update(model.StatusTestingPrompts, fmt.Sprintf("Testing %d prompts", total), 30, total, 0)

	for i := range refs {
		if ctx.Err() != nil {
			e.update(model.StatusError, cancelledMessage, progressFor(completed, total), total, completed)
			return ErrCancelled
		}

		// Pace the model calls; the first prompt goes immediately.
		if err := e.limiter.Wait(ctx); err != nil {
			e.update(model.StatusError, cancelledMessage, progressFor(completed, total), total, completed)
			return ErrCancelled
		}

		if err := e.processPrompt(ctx, &refs[i], &brandMentions); err != nil {
			// One prompt's failure never aborts the batch.
			logger.Log.Errorf("prompt %d/%d failed, continuing: %v", i+1, total, err)
		}

		completed++
		e.update(model.StatusTestingPrompts,
			fmt.Sprintf("Analyzed %d of %d prompts", completed, total),
			progressFor(completed, total), total, completed)
	}

	e.update(model.StatusAnalyzing, "Computing analytics", 85, total, completed)
	if err := e.finalize(ctx, total, brandMentions); err != nil {
		e.update(model.StatusError, err.Error(), 85, total, completed)
		return err
	}

	e.update(model.StatusComplete, "Analysis complete", 100, total, completed)
	logger.Log.Infof("analysis complete: %d prompts, %d brand mentions", total, brandMentions)
	return nil
}

// progressFor maps loop completion onto the 30..80 band of the progress bar.
func progressFor(completed, total int) int {
	if total == 0 {
		return 30
	}
	return 30 + int(float64(completed)/float64(total)*50)
}

func (e *Engine) update(status model.AnalysisStatus, message string, progress, total, completed int) {
	e.tracker.Update(model.AnalysisProgress{
		Status:           status,
		Message:          message,
		Progress:         progress,
		TotalPrompts:     total,
		CompletedPrompts: completed,
	})
}

// assemblePrompts picks exactly one sourcing branch: saved prompts (clearing
// prior prompt/response/competitor data, never sources), existing stored
// prompts, or a fresh scrape-and-generate pass.
func (e *Engine) assemblePrompts(ctx context.Context, opts RunOptions) ([]promptRef, error) {
	switch {
	case len(opts.SavedPrompts) > 0:
		if err := e.store.ClearAnalysisData(ctx); err != nil {
			return nil, fmt.Errorf("clear analysis data: %w", err)
		}
		var refs []promptRef
		for _, in := range opts.SavedPrompts {
			text := strings.TrimSpace(in.Text)
			if text == "" {
				continue
			}
			topicID := 0
			if in.Topic != "" {
				topic, err := e.ensureTopic(ctx, in.Topic, "")
				if err != nil {
					return nil, err
				}
				topicID = topic.ID
			}
			refs = append(refs, promptRef{text: text, topicID: topicID})
		}
		return refs, nil

	case opts.UseExistingPrompts:
		stored, err := e.store.ListPrompts(ctx)
		if err != nil {
			return nil, fmt.Errorf("load existing prompts: %w", err)
		}
		refs := make([]promptRef, 0, len(stored))
		for _, p := range stored {
			refs = append(refs, promptRef{id: p.ID, text: p.Text, topicID: p.TopicID})
		}
		return refs, nil

	default:
		return e.generatePrompts(ctx, opts)
	}
}

// defaultTopics is the fallback topic set when scraping or topic suggestion
// fails; the run still proceeds.
func defaultTopics(brand string) []model.TopicSuggestion {
	return []model.TopicSuggestion{
		{Name: "Pricing", Description: fmt.Sprintf("How %s pricing compares across the market", brand)},
		{Name: "Features", Description: fmt.Sprintf("Capabilities buyers expect from tools like %s", brand)},
		{Name: "Integrations", Description: "Connecting the product with the rest of a team's stack"},
		{Name: "Alternatives", Description: fmt.Sprintf("Options teams weigh against %s", brand)},
		{Name: "Getting Started", Description: "Onboarding, setup effort and the learning curve"},
	}
}

func (e *Engine) generatePrompts(ctx context.Context, opts RunOptions) ([]promptRef, error) {
	promptsPerTopic := opts.PromptsPerTopic
	if promptsPerTopic <= 0 {
		promptsPerTopic = e.cfg.Analysis.PromptsPerTopic
	}
	numberOfTopics := opts.NumberOfTopics
	if numberOfTopics <= 0 {
		numberOfTopics = e.cfg.Analysis.NumberOfTopics
	}

	e.update(model.StatusScraping, "Scraping website content", 5, 0, 0)
	content := ""
	if e.cfg.Brand.Website != "" {
		fetched, err := e.fetcher.FetchWebsiteText(e.cfg.Brand.Website)
		if err != nil {
			logger.Log.Warnf("website scrape failed, using default topics: %v", err)
		} else {
			content = fetched
		}
	}

	topics := defaultTopics(e.cfg.Brand.Name)
	if content != "" {
		suggested, err := e.llm.SuggestTopics(ctx, content, numberOfTopics)
		if err != nil {
			logger.Log.Warnf("topic suggestion failed, using default topics: %v", err)
		} else if len(suggested) > 0 {
			topics = suggested
		}
	}
	if len(topics) > numberOfTopics {
		topics = topics[:numberOfTopics]
	}

	var competitorNames []string
	if known, err := e.store.ListCompetitors(ctx); err == nil {
		for _, c := range known {
			competitorNames = append(competitorNames, c.Name)
		}
	}

	var refs []promptRef
	for i, t := range topics {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		e.update(model.StatusGeneratingPrompts,
			fmt.Sprintf("Generating prompts for %q", t.Name),
			10+int(float64(i)/float64(len(topics))*20), 0, 0)

		topic, err := e.ensureTopic(ctx, t.Name, t.Description)
		if err != nil {
			return nil, err
		}

		for _, text := range e.generator.GenerateDiverse(ctx, t.Name, t.Description, promptsPerTopic, competitorNames, e.cfg.Analysis.DiversityThreshold) {
			refs = append(refs, promptRef{text: text, topicID: topic.ID})
		}
	}
	return refs, nil
}

// ensureTopic persists a topic the first time its name is seen.
func (e *Engine) ensureTopic(ctx context.Context, name, description string) (*model.Topic, error) {
	topic, err := e.store.GetTopicByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("look up topic %q: %w", name, err)
	}
	if topic != nil {
		return topic, nil
	}
	topic, err = e.store.CreateTopic(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", name, err)
	}
	return topic, nil
}

// processPrompt is the per-prompt body: persist the prompt, obtain an
// analysis result (real or synthetic), feed the aggregates, persist the
// response.
func (e *Engine) processPrompt(ctx context.Context, ref *promptRef, brandMentions *int) error {
	if ref.id == 0 {
		p, err := e.store.CreatePrompt(ctx, ref.text, ref.topicID)
		if err != nil {
			return fmt.Errorf("persist prompt: %w", err)
		}
		ref.id = p.ID
	}

	result, err := e.llm.AnalyzePromptResponse(ctx, ref.text)
	if err != nil {
		logger.Log.Warnf("model analysis failed, using synthetic fallback: %v", err)
		result = e.syntheticResult(ctx, ref.text)
	}

	kept := e.registry.Dedupe(result.Competitors)
	for _, name := range kept {
		if err := e.recordCompetitor(ctx, name); err != nil {
			logger.Log.Errorf("failed to record competitor %q: %v", name, err)
		}
	}

	urls := e.collectURLs(ctx, ref.text, result)
	for _, group := range sources.GroupByDomain(urls) {
		if err := e.recordSourceGroup(ctx, group); err != nil {
			logger.Log.Errorf("failed to record source %q: %v", group.Domain, err)
		}
	}

	resp := &model.Response{
		PromptID:       ref.id,
		Text:           result.Response,
		BrandMentioned: result.BrandMentioned,
		Competitors:    kept,
		Sources:        urls,
	}
	if err := e.store.CreateResponse(ctx, resp); err != nil {
		return fmt.Errorf("persist response: %w", err)
	}

	if result.BrandMentioned {
		*brandMentions++
	}
	return nil
}

// syntheticFallbackSources are the generic citations attached to synthesized
// results so downstream aggregation still has something to group.
var syntheticFallbackSources = []model.SourceInfo{
	{Title: "Stack Overflow", URL: "https://stackoverflow.com/questions", Domain: "stackoverflow.com"},
	{Title: "GitHub", URL: "https://github.com/topics", Domain: "github.com"},
	{Title: "Reddit", URL: "https://reddit.com/r/webdev", Domain: "reddit.com"},
}

// syntheticResult stands in when the model is unreachable after retries, so
// a single API outage does not abort the whole batch. The brand mention is
// randomized at the configured rate; competitors are best-effort.
func (e *Engine) syntheticResult(ctx context.Context, promptText string) *model.AnalysisResult {
	mentioned := e.rng.Float64() < e.cfg.Analysis.SyntheticMentionRate

	var comps []string
	if extracted, err := e.llm.ExtractCompetitors(ctx, promptText, e.cfg.Brand.Name); err == nil {
		comps = extracted
	}

	var text string
	switch {
	case len(comps) > 0:
		text = fmt.Sprintf("There are several strong options in this space. Many teams evaluate %s before deciding, weighing pricing, reliability and ecosystem fit.", strings.Join(comps, ", "))
	default:
		text = "There are several strong options in this space. The right choice depends on pricing, reliability and how well the tool fits the existing stack."
	}
	if mentioned {
		text = fmt.Sprintf("%s %s is also frequently brought up in these comparisons.", text, e.cfg.Brand.Name)
	}

	return &model.AnalysisResult{
		Response:       text,
		BrandMentioned: mentioned,
		Competitors:    comps,
		Sources:        syntheticFallbackSources,
	}
}

// collectURLs unions the three URL sources for a prompt: the response text,
// the classifier's structured list, and the prompt text itself.
func (e *Engine) collectURLs(ctx context.Context, promptText string, result *model.AnalysisResult) []string {
	structured := result.Sources
	if len(structured) == 0 && result.Response != "" {
		// Best effort only; extraction failure leaves the text-mined URLs.
		if extracted, err := e.llm.ExtractSources(ctx, result.Response); err == nil {
			structured = extracted
		}
	}

	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}

	for _, u := range extract.URLs(result.Response) {
		add(u)
	}
	for _, s := range structured {
		if normalized, ok := extract.Normalize(s.URL); ok {
			add(normalized)
		}
	}
	for _, u := range extract.URLs(promptText) {
		add(u)
	}
	return out
}

// recordCompetitor creates the row on first sighting (with a category) and
// bumps its mention count exactly once for this response.
func (e *Engine) recordCompetitor(ctx context.Context, name string) error {
	competitor, err := e.store.GetCompetitorByName(ctx, name)
	if err != nil {
		return err
	}
	if competitor == nil {
		category := e.registry.Categorize(ctx, name)
		competitor, err = e.store.CreateCompetitor(ctx, name, category)
		if err != nil {
			return err
		}
	}
	return e.store.IncrementCompetitorMention(ctx, competitor.ID)
}

// recordSourceGroup creates the domain's Source row if needed and bumps its
// citation count once, no matter how many URLs on the domain appeared.
func (e *Engine) recordSourceGroup(ctx context.Context, group sources.Grouped) error {
	src, err := e.store.GetSourceByDomain(ctx, group.Domain)
	if err != nil {
		return err
	}
	if src == nil {
		representative := sources.RepresentativeURL(group.URLs)
		title := sources.TitleForDomain(group.Domain)
		src, err = e.store.CreateSource(ctx, group.Domain, representative, title)
		if err != nil {
			return err
		}
	}
	return e.store.IncrementSourceCitation(ctx, src.ID)
}

// finalize writes the rollup analytics snapshot.
func (e *Engine) finalize(ctx context.Context, total, brandMentions int) error {
	mentionRate := 0.0
	if total > 0 {
		mentionRate = float64(brandMentions) / float64(total) * 100
	}

	top, err := e.store.TopCompetitor(ctx)
	if err != nil {
		return fmt.Errorf("query top competitor: %w", err)
	}

	totalCitations, totalDomains, err := e.store.SourceStats(ctx)
	if err != nil {
		return fmt.Errorf("query source stats: %w", err)
	}

	a := &model.Analytics{
		Date:             time.Now(),
		TotalPrompts:     total,
		BrandMentionRate: mentionRate,
		TopCompetitor:    top,
		TotalSources:     totalCitations,
		TotalDomains:     totalDomains,
	}
	if err := e.store.SaveAnalytics(ctx, a); err != nil {
		return fmt.Errorf("save analytics: %w", err)
	}
	return nil
}
