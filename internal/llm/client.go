// Package llm provides the chat language-model client used by the agent.
package llm

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrUpstream marks failures of the language-model backend itself (network,
// non-200 status, malformed stream). There is no automatic retry; callers
// surface the failure and the client must re-issue the request.
var ErrUpstream = errors.New("language model request failed")

// Client is the interface for chat completion backends.
type Client interface {
	Chat(ctx context.Context, messages []models.Turn, config ModelConfig) (models.Turn, error)
	Close() error
}

// ModelConfig holds generation parameters for one call.
type ModelConfig struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// DefaultModelConfig returns the default generation parameters.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   2048,
	}
}
