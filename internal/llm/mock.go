package llm

import (
	"context"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MockClient replays scripted responses in order and records the message
// sequences it was called with. Used by agent and server tests.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]models.Turn
}

// NewMockClient creates a client that returns the given responses in order.
// After the script is exhausted the last response repeats.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{responses: responses}
}

// Fail makes every subsequent Chat call return err.
func (m *MockClient) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Chat returns the next scripted response.
func (m *MockClient) Chat(_ context.Context, messages []models.Turn, _ ModelConfig) (models.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Turn{}, m.err
	}
	copied := make([]models.Turn, len(messages))
	copy(copied, messages)
	m.calls = append(m.calls, copied)

	if len(m.responses) == 0 {
		return models.Turn{Role: models.RoleAssistant, Content: ""}, nil
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	return models.Turn{Role: models.RoleAssistant, Content: m.responses[idx]}, nil
}

// Calls returns the recorded message sequences.
func (m *MockClient) Calls() [][]models.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close is a no-op.
func (m *MockClient) Close() error {
	return nil
}
