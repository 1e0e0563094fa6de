package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
storage:
  database_path: ./index.db
workspace:
  dir: ./workspace
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("host default = %q", cfg.Server.Host)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions default = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Agent.MaxSteps != 4 {
		t.Errorf("max_steps default = %d", cfg.Agent.MaxSteps)
	}
	if cfg.Session.Retention != 40 {
		t.Errorf("retention default = %d", cfg.Session.Retention)
	}
	if cfg.Retrieval.ScoreThreshold != 0.3 {
		t.Errorf("score_threshold default = %v", cfg.Retrieval.ScoreThreshold)
	}
	if !filepath.IsAbs(cfg.Storage.DatabasePath) {
		t.Errorf("database path not expanded: %q", cfg.Storage.DatabasePath)
	}
	if filepath.Dir(cfg.Workspace.Dir) != dir {
		t.Errorf("workspace dir not relative to config dir: %q", cfg.Workspace.Dir)
	}
}

// Both Ollama URLs use the same convention: the API base including /api,
// with clients appending only the endpoint name.
func TestOllamaURLDefaultsShareConvention(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	want := "http://localhost:11434/api"
	if cfg.Embedding.OllamaURL != want {
		t.Errorf("embedding.ollama_url = %q, want %q", cfg.Embedding.OllamaURL, want)
	}
	if cfg.LLM.OllamaURL != want {
		t.Errorf("llm.ollama_url = %q, want %q", cfg.LLM.OllamaURL, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatchEnabledOrDefault(t *testing.T) {
	var w WatchConfig
	if !w.EnabledOrDefault() {
		t.Error("watch should default to enabled")
	}
	f := false
	w.Enabled = &f
	if w.EnabledOrDefault() {
		t.Error("explicit false should disable watch")
	}
}
