package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
brand:
  name: "TestBrand"
  website: "https://testbrand.example.org"
llm:
  model: "gpt-4o-mini"
analysis:
  prompts_per_topic: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LLM_API_KEY", "sk-from-env")
	t.Setenv("DB_PASSWORD", "pw-from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Brand.Name != "TestBrand" {
		t.Errorf("Brand.Name = %q, want TestBrand", cfg.Brand.Name)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("LLM.APIKey = %q, want the env override", cfg.LLM.APIKey)
	}
	if cfg.DB.Password != "pw-from-env" {
		t.Errorf("DB.Password = %q, want the env override", cfg.DB.Password)
	}

	// Explicit values survive; omitted knobs get defaults.
	if cfg.Analysis.PromptsPerTopic != 7 {
		t.Errorf("PromptsPerTopic = %d, want 7 from the file", cfg.Analysis.PromptsPerTopic)
	}
	if cfg.Analysis.DiversityThreshold != 30 {
		t.Errorf("DiversityThreshold = %v, want default 30", cfg.Analysis.DiversityThreshold)
	}
	if cfg.Analysis.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Analysis.MaxRetries)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q, want default :8000", cfg.Server.Addr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() error = nil, want read failure for a missing file")
	}
}
