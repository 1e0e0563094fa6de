package extract

import (
	"fmt"

	"github.com/lu4p/cat"

	"github.com/hyperjump/kotae/internal/models"
)

// extractODT extracts text from .odt and .rtf bytes into a single segment
// via lu4p/cat (which sniffs the format from the bytes).
func extractODT(content []byte, ext string) ([]models.Segment, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ext, err)
	}
	if text == "" {
		return nil, nil
	}
	return []models.Segment{textSegment(text)}, nil
}
