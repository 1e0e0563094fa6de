package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/models"
)

// extractPlain returns content as a single segment, validating it is valid
// UTF-8. Invalid sequences are replaced with the replacement character.
func extractPlain(content []byte) ([]models.Segment, error) {
	if !utf8.Valid(content) {
		content = []byte(strings.ToValidUTF8(string(content), "�"))
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.Segment{textSegment(text)}, nil
}
