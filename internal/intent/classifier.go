// Package intent provides heuristic classification of chat messages: workspace
// meta-questions and cross-document references. Pattern-based and best-effort;
// false positives and negatives are acceptable.
package intent

import (
	"regexp"
	"strings"
)

// Result is the classification of one message.
type Result struct {
	// IsMetaQuestion is true for workspace-enumeration questions ("what
	// files do I have"). These are answered deterministically by listing
	// the workspace, bypassing retrieval and the model.
	IsMetaQuestion bool
	// MentionedDocumentNames holds lowercased document names the message
	// refers to.
	MentionedDocumentNames map[string]bool
	// HasCrossDocumentIntent is true when phrasing implies documents other
	// than the one currently in focus, which widens retrieval scope.
	HasCrossDocumentIntent bool
}

// metaPatterns recognize workspace-enumeration intent.
var metaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat\s+(?:files|documents|docs)\s+do\s+i\s+have\b`),
	regexp.MustCompile(`(?i)\bwhich\s+(?:files|documents|docs)\s+do\s+i\s+have\b`),
	regexp.MustCompile(`(?i)\blist\s+(?:all\s+)?(?:my\s+|the\s+)?(?:files|documents|docs)\b`),
	regexp.MustCompile(`(?i)\bwhat(?:'s|\s+is)\s+in\s+my\s+workspace\b`),
	regexp.MustCompile(`(?i)\bshow\s+(?:me\s+)?(?:all\s+|my\s+)?(?:the\s+)?(?:files|documents|docs)\b`),
}

// crossDocPatterns recognize references to documents beyond the one in
// focus. A capture group, when present and matched, names the document.
var crossDocPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe\s+document\s+(?:named\s+|called\s+)?"?([\w][\w.-]*)"?`),
	regexp.MustCompile(`(?i)\bfile\s+"?([\w][\w.-]*\.[\w]+)"?`),
	regexp.MustCompile(`(?i)\bbased\s+on\s+(?:the\s+)?document\b(?:\s+"?([\w][\w.-]*)"?)?`),
	regexp.MustCompile(`(?i)\b(?:the\s+)?other\s+documents?\b`),
	regexp.MustCompile(`(?i)\bacross\s+(?:all\s+)?(?:my\s+)?documents\b`),
	regexp.MustCompile(`(?i)\ball\s+(?:of\s+)?(?:my\s+)?(?:other\s+)?documents\b`),
	regexp.MustCompile(`(?i)\bcompare\b.*\bdocuments\b`),
}

// filenamePattern captures any bare filename with a known extension,
// independent of the cross-document patterns.
var filenamePattern = regexp.MustCompile(`(?i)\b([\w][\w.-]*\.(?:pdf|docx|txt|tex|md|xlsx))\b`)

// Classify inspects a message for meta-question and cross-document signals.
func Classify(message string) Result {
	result := Result{MentionedDocumentNames: make(map[string]bool)}

	for _, p := range metaPatterns {
		if p.MatchString(message) {
			result.IsMetaQuestion = true
			break
		}
	}

	for _, p := range crossDocPatterns {
		matches := p.FindAllStringSubmatch(message, -1)
		if len(matches) == 0 {
			continue
		}
		result.HasCrossDocumentIntent = true
		for _, m := range matches {
			if len(m) > 1 && m[1] != "" {
				result.MentionedDocumentNames[strings.ToLower(m[1])] = true
			}
		}
	}

	for _, m := range filenamePattern.FindAllStringSubmatch(message, -1) {
		result.MentionedDocumentNames[strings.ToLower(m[1])] = true
	}

	return result
}
