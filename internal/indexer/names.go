package indexer

import (
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
)

// uniquePrefixRe matches the 8-hex uniqueness prefix prepended to uploaded
// filenames (e.g. "a1b2c3d4_report.pdf").
var uniquePrefixRe = regexp.MustCompile(`^[0-9a-f]{8}_`)

// UniqueName returns filename's base name qualified with a random 8-hex
// prefix so repeated uploads of the same file never collide.
func UniqueName(filename string) string {
	return uuid.New().String()[:8] + "_" + filepath.Base(filename)
}

// StripUniquePrefix returns the display name of a stored filename, removing
// the uniqueness prefix if present.
func StripUniquePrefix(stored string) string {
	return uniquePrefixRe.ReplaceAllString(stored, "")
}
