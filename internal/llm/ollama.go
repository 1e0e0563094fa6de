package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// OllamaClient talks to a local Ollama server over its HTTP API.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures the client.
type Option func(*OllamaClient)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *OllamaClient) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *OllamaClient) {
		c.httpClient = httpClient
	}
}

// NewOllamaClient creates a client for an Ollama server. baseURL is the API
// base including the /api prefix, the same convention the embedding backend
// uses; an empty baseURL falls back to the default local address.
func NewOllamaClient(baseURL, model string, opts ...Option) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434/api"
	}
	c := &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		// Generations can take a while on CPU-only hosts.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Chat sends the conversation and returns the assistant turn. Ollama streams
// one JSON object per line; the message fragments are concatenated.
func (c *OllamaClient) Chat(ctx context.Context, messages []models.Turn, config ModelConfig) (models.Turn, error) {
	req := chatRequest{
		Model:  c.model,
		Stream: true,
		Options: chatOptions{
			Temperature: config.Temperature,
			TopP:        config.TopP,
			NumPredict:  config.MaxTokens,
		},
	}
	req.Messages = make([]chatMessage, len(messages))
	for i, turn := range messages {
		req.Messages[i] = chatMessage{Role: string(turn.Role), Content: turn.Content}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return models.Turn{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return models.Turn{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return models.Turn{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return models.Turn{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, msg)
	}

	var content strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return models.Turn{}, fmt.Errorf("%w: malformed response chunk: %v", ErrUpstream, err)
		}
		content.WriteString(chunk.Message.Content)
	}
	if err := scanner.Err(); err != nil {
		return models.Turn{}, fmt.Errorf("%w: reading response stream: %v", ErrUpstream, err)
	}

	c.logger.Debug("chat completion",
		zap.String("model", c.model),
		zap.Int("messages", len(messages)),
		zap.Duration("duration", time.Since(start)))

	return models.Turn{Role: models.RoleAssistant, Content: content.String()}, nil
}

// Close is a no-op; the HTTP client holds no resources.
func (c *OllamaClient) Close() error {
	return nil
}
