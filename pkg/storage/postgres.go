package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/pulsemetrics/brand_radar/pkg/config"
	"github.com/pulsemetrics/brand_radar/pkg/model"
)

// Storage is the Postgres persistence layer. The schema is created on
// connect, so a fresh database works without migrations.
type Storage struct {
	db *sql.DB
}

func NewStorage(cfg config.DBConfig) (*Storage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS topics (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS prompts (
			id SERIAL PRIMARY KEY,
			topic_id INTEGER REFERENCES topics(id),
			text TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS responses (
			id SERIAL PRIMARY KEY,
			prompt_id INTEGER REFERENCES prompts(id),
			text TEXT NOT NULL,
			brand_mentioned BOOLEAN NOT NULL DEFAULT FALSE,
			competitors TEXT[] NOT NULL DEFAULT '{}',
			sources TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS competitors (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			category TEXT,
			mention_count INTEGER NOT NULL DEFAULT 0,
			last_mentioned TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sources (
			id SERIAL PRIMARY KEY,
			domain TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			citation_count INTEGER NOT NULL DEFAULT 0,
			last_cited TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS analytics (
			id SERIAL PRIMARY KEY,
			date TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			total_prompts INTEGER NOT NULL,
			brand_mention_rate DOUBLE PRECISION NOT NULL,
			top_competitor TEXT,
			total_sources INTEGER NOT NULL,
			total_domains INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

func (s *Storage) CreateTopic(ctx context.Context, name, description string) (*model.Topic, error) {
	t := &model.Topic{Name: name, Description: description}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO topics (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at`, name, description).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert topic: %w", err)
	}
	return t, nil
}

// GetTopicByName returns (nil, nil) when no topic has that name.
func (s *Storage) GetTopicByName(ctx context.Context, name string) (*model.Topic, error) {
	t := &model.Topic{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), created_at
		FROM topics WHERE name = $1`, name).
		Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query topic: %w", err)
	}
	return t, nil
}

func (s *Storage) CreatePrompt(ctx context.Context, text string, topicID int) (*model.Prompt, error) {
	p := &model.Prompt{Text: text, TopicID: topicID}
	var topic sql.NullInt64
	if topicID > 0 {
		topic = sql.NullInt64{Int64: int64(topicID), Valid: true}
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO prompts (topic_id, text)
		VALUES ($1, $2)
		RETURNING id, created_at`, topic, text).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert prompt: %w", err)
	}
	return p, nil
}

func (s *Storage) ListPrompts(ctx context.Context) ([]model.Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(topic_id, 0), text, created_at
		FROM prompts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		if err := rows.Scan(&p.ID, &p.TopicID, &p.Text, &p.CreatedAt); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

func (s *Storage) CreateResponse(ctx context.Context, r *model.Response) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO responses (prompt_id, text, brand_mentioned, competitors, sources)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		r.PromptID, r.Text, r.BrandMentioned, pq.Array(r.Competitors), pq.Array(r.Sources)).
		Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}
	return nil
}

// GetCompetitorByName is an exact, case-sensitive lookup; (nil, nil) when
// absent.
func (s *Storage) GetCompetitorByName(ctx context.Context, name string) (*model.Competitor, error) {
	c := &model.Competitor{}
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(category, ''), mention_count, last_mentioned
		FROM competitors WHERE name = $1`, name).
		Scan(&c.ID, &c.Name, &c.Category, &c.MentionCount, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query competitor: %w", err)
	}
	c.LastMentioned = last.Time
	return c, nil
}

func (s *Storage) CreateCompetitor(ctx context.Context, name, category string) (*model.Competitor, error) {
	c := &model.Competitor{Name: name, Category: category}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO competitors (name, category, mention_count)
		VALUES ($1, $2, 0)
		RETURNING id`, name, category).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert competitor: %w", err)
	}
	return c, nil
}

func (s *Storage) IncrementCompetitorMention(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE competitors
		SET mention_count = mention_count + 1, last_mentioned = CURRENT_TIMESTAMP
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment competitor mention: %w", err)
	}
	return nil
}

func (s *Storage) ListCompetitors(ctx context.Context) ([]model.Competitor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(category, ''), mention_count, last_mentioned
		FROM competitors ORDER BY mention_count DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	defer rows.Close()

	var competitors []model.Competitor
	for rows.Next() {
		var c model.Competitor
		var last sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Category, &c.MentionCount, &last); err != nil {
			return nil, err
		}
		c.LastMentioned = last.Time
		competitors = append(competitors, c)
	}
	return competitors, rows.Err()
}

// TopCompetitor returns "" when no competitor has been recorded yet.
func (s *Storage) TopCompetitor(ctx context.Context) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name FROM competitors
		ORDER BY mention_count DESC, name LIMIT 1`).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query top competitor: %w", err)
	}
	return name, nil
}

// GetSourceByDomain returns (nil, nil) when the domain is not tracked yet.
func (s *Storage) GetSourceByDomain(ctx context.Context, domain string) (*model.Source, error) {
	src := &model.Source{}
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, url, title, citation_count, last_cited
		FROM sources WHERE domain = $1`, domain).
		Scan(&src.ID, &src.Domain, &src.URL, &src.Title, &src.CitationCount, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	src.LastCited = last.Time
	return src, nil
}

func (s *Storage) CreateSource(ctx context.Context, domain, url, title string) (*model.Source, error) {
	src := &model.Source{Domain: domain, URL: url, Title: title}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sources (domain, url, title, citation_count)
		VALUES ($1, $2, $3, 0)
		RETURNING id`, domain, url, title).Scan(&src.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}
	return src, nil
}

func (s *Storage) IncrementSourceCitation(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sources
		SET citation_count = citation_count + 1, last_cited = CURRENT_TIMESTAMP
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment source citation: %w", err)
	}
	return nil
}

func (s *Storage) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain, url, title, citation_count, last_cited
		FROM sources ORDER BY citation_count DESC, domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		var last sql.NullTime
		if err := rows.Scan(&src.ID, &src.Domain, &src.URL, &src.Title, &src.CitationCount, &last); err != nil {
			return nil, err
		}
		src.LastCited = last.Time
		out = append(out, src)
	}
	return out, rows.Err()
}

// SourceStats returns the sum of citation counts and the number of distinct
// domains tracked.
func (s *Storage) SourceStats(ctx context.Context) (totalCitations, totalDomains int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(citation_count), 0), COUNT(*) FROM sources`).
		Scan(&totalCitations, &totalDomains)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query source stats: %w", err)
	}
	return totalCitations, totalDomains, nil
}

// ClearAnalysisData wipes prompts, responses and competitors inside one
// transaction. Sources and topics survive clears.
func (s *Storage) ClearAnalysisData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, query := range []string{
		`DELETE FROM responses`,
		`DELETE FROM prompts`,
		`DELETE FROM competitors`,
	} {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to clear analysis data: %w", err)
		}
	}

	return tx.Commit()
}

func (s *Storage) SaveAnalytics(ctx context.Context, a *model.Analytics) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO analytics (total_prompts, brand_mention_rate, top_competitor, total_sources, total_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, date`,
		a.TotalPrompts, a.BrandMentionRate, a.TopCompetitor, a.TotalSources, a.TotalDomains).
		Scan(&a.ID, &a.Date)
	if err != nil {
		return fmt.Errorf("failed to insert analytics: %w", err)
	}
	return nil
}

// LatestAnalytics returns (nil, nil) before the first completed run.
func (s *Storage) LatestAnalytics(ctx context.Context) (*model.Analytics, error) {
	a := &model.Analytics{}
	var top sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, total_prompts, brand_mention_rate, top_competitor, total_sources, total_domains
		FROM analytics ORDER BY date DESC LIMIT 1`).
		Scan(&a.ID, &a.Date, &a.TotalPrompts, &a.BrandMentionRate, &top, &a.TotalSources, &a.TotalDomains)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}
	a.TopCompetitor = top.String
	return a, nil
}
