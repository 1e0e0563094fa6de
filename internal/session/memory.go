// Package session provides bounded per-session conversation memory.
package session

import (
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// PromptWindow is how many recent turns are surfaced into prompt
// construction, independent of the retention cap.
const PromptWindow = 6

// Store holds conversation history per session, bounded by a retention cap.
// Sessions are created lazily on first append and are volatile: history does
// not survive a process restart.
type Store struct {
	retention int

	mu       sync.RWMutex
	sessions map[string][]models.Turn
}

// NewStore creates a store retaining at most retention turns per session.
func NewStore(retention int) *Store {
	if retention <= 0 {
		retention = 40
	}
	return &Store{
		retention: retention,
		sessions:  make(map[string][]models.Turn),
	}
}

// GetHistory returns the session's turns oldest-first, or an empty slice for
// an unknown session.
func (s *Store) GetHistory(sessionID string) []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

// Recent returns the last PromptWindow turns for prompt construction.
func (s *Store) Recent(sessionID string) []models.Turn {
	history := s.GetHistory(sessionID)
	if len(history) > PromptWindow {
		history = history[len(history)-PromptWindow:]
	}
	return history
}

// Append appends the user and assistant turns of one exchange, discarding
// the oldest turns beyond the retention cap.
func (s *Store) Append(sessionID string, userTurn, assistantTurn models.Turn) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := append(s.sessions[sessionID], userTurn, assistantTurn)
	if len(turns) > s.retention {
		over := len(turns) - s.retention
		turns = append([]models.Turn(nil), turns[over:]...)
	}
	s.sessions[sessionID] = turns
}

// Clear forgets a session's history entirely.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
