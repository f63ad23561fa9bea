package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Brand    BrandConfig       `yaml:"brand"`
	LLM      LLMConfig         `yaml:"llm"`
	DB       DBConfig          `yaml:"db"`
	Server   ServerConfig      `yaml:"server"`
	Log      LogConfig         `yaml:"log"`
	Analysis AnalysisConfig    `yaml:"analysis"`
	Ratelim  ConcurrencyConfig `yaml:"concurrency"`
}

// BrandConfig identifies the brand whose visibility is measured.
type BrandConfig struct {
	Name    string `yaml:"name"`
	Website string `yaml:"website"`
}

// LLMConfig points at the chat completion endpoint.
type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// DBConfig is the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// ServerConfig is the HTTP listen address.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	Timeout string `yaml:"timeout"`
}

// LogConfig controls level and optional file output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConcurrencyConfig sizes the shared LLM rate limiter.
type ConcurrencyConfig struct {
	QPS int `yaml:"qps"`
	RPM int `yaml:"rpm"`
}

// AnalysisConfig names the pipeline's tuning knobs. These are product tuning
// values, not derived from first principles; every field has a default so an
// empty section works.
type AnalysisConfig struct {
	PromptsPerTopic               int     `yaml:"prompts_per_topic"`
	NumberOfTopics                int     `yaml:"number_of_topics"`
	DiversityThreshold            float64 `yaml:"diversity_threshold"`
	CompetitorSimilarityThreshold float64 `yaml:"competitor_similarity_threshold"`
	SyntheticMentionRate          float64 `yaml:"synthetic_mention_rate"`
	PromptDelayMs                 int     `yaml:"prompt_delay_ms"`
	AnalysisTimeoutSec            int     `yaml:"analysis_timeout_sec"`
	CategorizeTimeoutSec          int     `yaml:"categorize_timeout_sec"`
	ScrapeTimeoutSec              int     `yaml:"scrape_timeout_sec"`
	MaxRetries                    int     `yaml:"max_retries"`
	RetryBaseDelaySec             int     `yaml:"retry_base_delay_sec"`
}

// Load reads the YAML config at path. A .env file (if present) and process
// environment variables override the secrets, so API keys never have to live
// in the checked-in config.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // no .env is fine, system env vars still apply

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills in every zero-valued tuning knob.
func (c *Config) ApplyDefaults() {
	a := &c.Analysis
	if a.PromptsPerTopic == 0 {
		a.PromptsPerTopic = 20
	}
	if a.NumberOfTopics == 0 {
		a.NumberOfTopics = 5
	}
	if a.DiversityThreshold == 0 {
		a.DiversityThreshold = 30
	}
	if a.CompetitorSimilarityThreshold == 0 {
		a.CompetitorSimilarityThreshold = 70
	}
	if a.SyntheticMentionRate == 0 {
		a.SyntheticMentionRate = 0.15
	}
	if a.PromptDelayMs == 0 {
		a.PromptDelayMs = 2000
	}
	if a.AnalysisTimeoutSec == 0 {
		a.AnalysisTimeoutSec = 30
	}
	if a.CategorizeTimeoutSec == 0 {
		a.CategorizeTimeoutSec = 15
	}
	if a.ScrapeTimeoutSec == 0 {
		a.ScrapeTimeoutSec = 30
	}
	if a.MaxRetries == 0 {
		a.MaxRetries = 3
	}
	if a.RetryBaseDelaySec == 0 {
		a.RetryBaseDelaySec = 2
	}
	if c.Ratelim.QPS == 0 {
		c.Ratelim.QPS = 1
	}
	if c.Ratelim.RPM == 0 {
		c.Ratelim.RPM = 30
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
