package embedding

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// New creates an embedder for the configured backend. Unreachable or
// unavailable backends fall back to the deterministic mock embedder so the
// service still starts (same degradation the index applies on a corrupt
// snapshot). logger may be nil.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) Embedder {
	switch cfg.Backend {
	case "onnx":
		emb, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens, cfg.CacheSize)
		if err == nil {
			return emb
		}
		if logger != nil {
			logger.Warn("onnx embedder unavailable, falling back to mock", zap.Error(err))
		}
	case "mock":
	default: // "ollama"
		emb := NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, cfg.Dimensions, cfg.CacheSize)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := emb.Ping(ctx); err == nil {
			return emb
		} else if logger != nil {
			logger.Warn("ollama embedder unreachable, falling back to mock",
				zap.String("url", cfg.OllamaURL), zap.Error(err))
		}
	}
	return NewMockEmbedder(cfg.Dimensions)
}
