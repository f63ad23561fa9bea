// Package service sits between the HTTP surface and the pipeline: it
// translates transport-level requests into engine and storage calls and
// shapes the dashboard payloads.
package service

import (
	"context"
	"errors"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/pulsemetrics/brand_radar/pkg/engine"
	"github.com/pulsemetrics/brand_radar/pkg/model"
)

// DataStore is the read surface the dashboard and export endpoints need.
type DataStore interface {
	ListCompetitors(ctx context.Context) ([]model.Competitor, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListPrompts(ctx context.Context) ([]model.Prompt, error)
	LatestAnalytics(ctx context.Context) (*model.Analytics, error)
	ExportAll(ctx context.Context) (*model.Export, error)
}

// AnalysisService exposes the analysis pipeline over whatever transport the
// server wires it to.
type AnalysisService struct {
	engine *engine.Engine
	store  DataStore
	log    *log.Helper
}

// NewAnalysisService builds the service.
func NewAnalysisService(e *engine.Engine, store DataStore, logger log.Logger) *AnalysisService {
	return &AnalysisService{
		engine: e,
		store:  store,
		log:    log.NewHelper(logger),
	}
}

// StartRequest is the body of a start call. All fields are optional; an
// empty body triggers a fresh scrape-and-generate run with configured sizes.
type StartRequest struct {
	UseExistingPrompts bool                `json:"use_existing_prompts,omitempty"`
	SavedPrompts       []model.PromptInput `json:"saved_prompts,omitempty"`
	PromptsPerTopic    int                 `json:"prompts_per_topic,omitempty"`
	NumberOfTopics     int                 `json:"number_of_topics,omitempty"`
}

// Start launches an analysis run in the background. It returns
// engine.ErrAnalysisRunning when one is already active.
func (s *AnalysisService) Start(req *StartRequest) error {
	opts := engine.RunOptions{
		UseExistingPrompts: req.UseExistingPrompts,
		SavedPrompts:       req.SavedPrompts,
		PromptsPerTopic:    req.PromptsPerTopic,
		NumberOfTopics:     req.NumberOfTopics,
	}
	if err := s.engine.StartAsync(opts); err != nil {
		if errors.Is(err, engine.ErrAnalysisRunning) {
			s.log.Warn("start rejected: analysis already running")
		}
		return err
	}
	s.log.Infow("msg", "analysis started",
		"use_existing", req.UseExistingPrompts,
		"saved_prompts", len(req.SavedPrompts))
	return nil
}

// Cancel requests cancellation of the active run. Cancelling when nothing is
// running is a no-op.
func (s *AnalysisService) Cancel() {
	s.engine.Cancel()
	s.log.Info("analysis cancellation requested")
}

// Progress returns the latest progress snapshot.
func (s *AnalysisService) Progress() model.AnalysisProgress {
	return s.engine.Progress()
}

// Running reports whether a run is active.
func (s *AnalysisService) Running() bool {
	return s.engine.Running()
}

// Export dumps every persisted entity for download.
func (s *AnalysisService) Export(ctx context.Context) (*model.Export, error) {
	export, err := s.store.ExportAll(ctx)
	if err != nil {
		s.log.Errorf("export failed: %v", err)
		return nil, err
	}
	return export, nil
}

// Dashboard is the aggregate view backing the landing page.
type Dashboard struct {
	Analytics   *model.Analytics       `json:"analytics,omitempty"`
	Competitors []model.Competitor     `json:"competitors"`
	Sources     []model.Source         `json:"sources"`
	PromptCount int                    `json:"prompt_count"`
	Progress    model.AnalysisProgress `json:"progress"`
}

// GetDashboard assembles the rollup view: latest analytics snapshot,
// competitor and source leaderboards, and the live progress state.
func (s *AnalysisService) GetDashboard(ctx context.Context) (*Dashboard, error) {
	analytics, err := s.store.LatestAnalytics(ctx)
	if err != nil {
		return nil, err
	}

	comps, err := s.store.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}

	srcs, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	prompts, err := s.store.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Analytics:   analytics,
		Competitors: comps,
		Sources:     srcs,
		PromptCount: len(prompts),
		Progress:    s.engine.Progress(),
	}, nil
}
