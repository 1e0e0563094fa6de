package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/kotae/internal/models"
)

// extractPDF extracts one segment per page, carrying the 1-based page number
// and the line range within that page's text.
func extractPDF(content []byte) ([]models.Segment, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	segments := make([]models.Segment, 0, numPages)
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Text: text,
			Location: models.Location{
				Page:      i + 1,
				LineStart: 1,
				LineEnd:   lineCount(text),
			},
		})
	}
	return segments, nil
}
