// Package extract provides text extraction from document formats into
// ordered segments with location metadata (page, sheet, line range).
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrUnsupported is returned for file types no extractor handles.
var ErrUnsupported = errors.New("unsupported document type")

// Extractor extracts located text segments from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text segments in document order.
// Returns an error if the file cannot be read, the content cannot be parsed,
// or the format is unsupported (ErrUnsupported).
func (e *Extractor) Extract(path string) ([]models.Segment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts segments from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]models.Segment, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".odt", ".rtf":
		return extractODT(content, ext)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md", ".rst", ".tex", "":
		return extractPlain(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// Supported reports whether ext (with leading dot) has an extractor.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".xlsx", ".txt", ".md", ".rst", ".tex":
		return true
	}
	return false
}

// textSegment wraps text into a single segment spanning its full line range.
func textSegment(text string) models.Segment {
	return models.Segment{
		Text:     text,
		Location: models.Location{LineStart: 1, LineEnd: lineCount(text)},
	}
}

// lineCount returns the number of lines in text (at least 1 for non-empty text).
func lineCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, "\n") + 1
}
