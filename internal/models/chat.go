package models

import "fmt"

// Role is a conversation turn role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Turn is a single conversation turn.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InlineDocument is an ad-hoc document attached to a single chat message.
type InlineDocument struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// ChatRequest is a chat/agent request.
type ChatRequest struct {
	Message     string          `json:"message"`
	Document    *InlineDocument `json:"document,omitempty"`
	DocumentIDs []string        `json:"document_ids,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
}

// Validate checks required fields.
func (r *ChatRequest) Validate() error {
	if r.Message == "" {
		return fmt.Errorf("message cannot be empty")
	}
	return nil
}

// Citation identifies where retrieved text came from: filename plus
// page/sheet and/or line range.
type Citation struct {
	Filename  string  `json:"filename"`
	DocID     string  `json:"doc_id"`
	Score     float64 `json:"score"`
	Page      int     `json:"page,omitempty"`
	Sheet     string  `json:"sheet,omitempty"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
}

// ToolCallRecord is one tool invocation made during an agent loop, kept for
// observability and discarded after the response.
type ToolCallRecord struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ChatResponse is the assembled answer of one agent-loop invocation.
type ChatResponse struct {
	Response             string           `json:"response"`
	Citations            []Citation       `json:"citations"`
	ToolCalls            []ToolCallRecord `json:"tool_calls"`
	CreatedFiles         []string         `json:"created_files"`
	UsedGeneralKnowledge bool             `json:"used_general_knowledge"`
}
