// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Session   SessionConfig   `yaml:"session"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the path of the durable index artifact.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WorkspaceConfig holds the sandboxed workspace root for uploaded files.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
}

// EmbeddingConfig holds embedder settings. Backend is "ollama", "onnx", or
// "mock"; unreachable backends fall back to mock at startup.
type EmbeddingConfig struct {
	Backend    string `yaml:"backend"`
	OllamaURL  string `yaml:"ollama_url"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// LLMConfig holds language model client settings. OllamaURL is the API base
// including the /api prefix, the same convention as Embedding.OllamaURL.
type LLMConfig struct {
	OllamaURL   string  `yaml:"ollama_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AgentConfig holds agent loop settings.
type AgentConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// SessionConfig holds conversation memory settings.
type SessionConfig struct {
	Retention int `yaml:"retention"`
}

// RetrievalConfig holds retrieval scope settings.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	Candidates     int     `yaml:"candidates"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	DegradeBest    int     `yaml:"degrade_best"`
}

// WatchConfig holds workspace watch settings.
type WatchConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// EnabledOrDefault returns whether to watch the workspace; defaults to true when unset.
func (w *WatchConfig) EnabledOrDefault() bool {
	if w.Enabled != nil {
		return *w.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Workspace.Dir = expandPath(cfg.Workspace.Dir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
