// Package indexer provides the file-to-index pipeline: extraction, line
// chunking, workspace naming, and tolerant uploads.
package indexer

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Chunker subdivides extracted segments into overlapping line windows so
// chunks stay small enough to embed while keeping accurate line ranges.
type Chunker struct {
	maxLines int
	overlap  int
}

// NewChunker creates a chunker with the given window size and overlap (in lines).
func NewChunker(maxLines, overlap int) *Chunker {
	if maxLines <= 0 {
		maxLines = 40
	}
	if overlap < 0 || overlap >= maxLines {
		overlap = 0
	}
	return &Chunker{maxLines: maxLines, overlap: overlap}
}

// Split returns the segments with any segment longer than the window split
// into overlapping windows. Page and sheet metadata is inherited; line ranges
// are offset into the original segment's range.
func (c *Chunker) Split(segments []models.Segment) []models.Segment {
	var out []models.Segment
	for _, seg := range segments {
		lines := strings.Split(seg.Text, "\n")
		if len(lines) <= c.maxLines {
			out = append(out, seg)
			continue
		}
		step := c.maxLines - c.overlap
		for start := 0; start < len(lines); start += step {
			end := start + c.maxLines
			if end > len(lines) {
				end = len(lines)
			}
			text := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
			if text != "" {
				out = append(out, models.Segment{
					Text: text,
					Location: models.Location{
						Page:      seg.Location.Page,
						Sheet:     seg.Location.Sheet,
						LineStart: seg.Location.LineStart + start,
						LineEnd:   seg.Location.LineStart + end - 1,
					},
				})
			}
			if end >= len(lines) {
				break
			}
		}
	}
	return out
}
