package storage

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/pulsemetrics/brand_radar/pkg/model"
)

// ExportAll dumps every persisted entity for the export endpoint. Not
// performance-sensitive; each table is read in full.
func (s *Storage) ExportAll(ctx context.Context) (*model.Export, error) {
	out := &model.Export{}

	topicRows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at FROM topics ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to export topics: %w", err)
	}
	defer topicRows.Close()
	for topicRows.Next() {
		var t model.Topic
		if err := topicRows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		out.Topics = append(out.Topics, t)
	}
	if err := topicRows.Err(); err != nil {
		return nil, err
	}

	prompts, err := s.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	out.Prompts = prompts

	respRows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(prompt_id, 0), text, brand_mentioned, competitors, sources, created_at
		FROM responses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to export responses: %w", err)
	}
	defer respRows.Close()
	for respRows.Next() {
		var r model.Response
		if err := respRows.Scan(&r.ID, &r.PromptID, &r.Text, &r.BrandMentioned,
			pq.Array(&r.Competitors), pq.Array(&r.Sources), &r.CreatedAt); err != nil {
			return nil, err
		}
		out.Responses = append(out.Responses, r)
	}
	if err := respRows.Err(); err != nil {
		return nil, err
	}

	competitors, err := s.ListCompetitors(ctx)
	if err != nil {
		return nil, err
	}
	out.Competitors = competitors

	sources, err := s.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	out.Sources = sources

	analyticsRows, err := s.db.QueryContext(ctx, `
		SELECT id, date, total_prompts, brand_mention_rate, COALESCE(top_competitor, ''), total_sources, total_domains
		FROM analytics ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to export analytics: %w", err)
	}
	defer analyticsRows.Close()
	for analyticsRows.Next() {
		var a model.Analytics
		if err := analyticsRows.Scan(&a.ID, &a.Date, &a.TotalPrompts, &a.BrandMentionRate,
			&a.TopCompetitor, &a.TotalSources, &a.TotalDomains); err != nil {
			return nil, err
		}
		out.Analytics = append(out.Analytics, a)
	}
	return out, analyticsRows.Err()
}
