package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kotae/internal/models"
)

// extractExcel extracts one segment per sheet. Rows become tab-joined lines
// so the segment's line range maps back to spreadsheet rows.
func extractExcel(content []byte) ([]models.Segment, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var segments []models.Segment
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "\t"))
		}
		text := strings.TrimSpace(strings.Join(lines, "\n"))
		if text == "" {
			continue
		}
		segments = append(segments, models.Segment{
			Text: text,
			Location: models.Location{
				Sheet:     sheet,
				LineStart: 1,
				LineEnd:   lineCount(text),
			},
		})
	}
	return segments, nil
}
