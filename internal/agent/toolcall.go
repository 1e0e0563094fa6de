package agent

import (
	"encoding/json"
	"strings"
)

type toolCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// parseToolCall reports whether a model reply is a tool invocation. Accepts
// the bare JSON object and the common case of the object wrapped in a
// markdown code fence.
func parseToolCall(content string) (*toolCall, bool) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	var call toolCall
	if err := json.Unmarshal([]byte(s), &call); err != nil {
		return nil, false
	}
	if call.Tool == "" {
		return nil, false
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	return &call, true
}
