package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
)

// buildMessages assembles the conversation sent to the model: system
// instructions with tool definitions and retrieved sources, the recent
// session window, then the user message.
func (o *Orchestrator) buildMessages(req *models.ChatRequest, passages []*models.SearchResult, hasRelevantDocs bool) []models.Turn {
	var b strings.Builder
	b.WriteString("You are a document assistant working over a user's workspace.\n\n")

	if hasRelevantDocs {
		b.WriteString("Answer only from the sources below. If they do not contain the answer, say you do not know.\n\n")
		b.WriteString("Sources:\n")
		for i, p := range passages {
			b.WriteString(formatPassage(i+1, p))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No relevant documents were found for this question. You may answer from general knowledge.\n\n")
	}

	b.WriteString("You can use these tools:\n")
	for _, def := range o.registry.Definitions() {
		params, _ := json.Marshal(def.Parameters)
		fmt.Fprintf(&b, "- %s: %s Arguments: %s\n", def.Name, def.Description, params)
	}
	b.WriteString("\nTo use a tool, reply with a single JSON object and nothing else:\n")
	b.WriteString(`{"tool": "<name>", "args": {...}}` + "\n")
	b.WriteString("Otherwise reply with your final answer as plain text.")

	messages := []models.Turn{{Role: models.RoleSystem, Content: b.String()}}
	messages = append(messages, o.sessions.Recent(req.SessionID)...)
	messages = append(messages, models.Turn{Role: models.RoleUser, Content: req.Message})
	return messages
}

// formatPassage renders one retrieved passage with its provenance tag.
func formatPassage(n int, p *models.SearchResult) string {
	loc := p.Chunk.Location
	var parts []string
	if loc.Page > 0 {
		parts = append(parts, fmt.Sprintf("page %d", loc.Page))
	}
	if loc.Sheet != "" {
		parts = append(parts, fmt.Sprintf("sheet %s", loc.Sheet))
	}
	if loc.LineStart > 0 {
		parts = append(parts, fmt.Sprintf("lines %d-%d", loc.LineStart, loc.LineEnd))
	}
	where := ""
	if len(parts) > 0 {
		where = " (" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("[%d] %s%s:\n%s\n", n, indexer.StripUniquePrefix(p.Chunk.Filename), where, p.Chunk.Text)
}
