package generate

import (
	"regexp"
	"strings"

	"sitesmith/internal/domain"
)

// maxQuickEditTokenLen guards against misfiring on paragraph-length prompts.
const maxQuickEditTokenLen = 50

// Ordered most-specific first; the first template that matches wins.
var quickEditPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:change|replace|rename)\s+["'\x60]([^"'\x60]+)["'\x60]\s+(?:to|with)\s+["'\x60]([^"'\x60]+)["'\x60]`),
	regexp.MustCompile(`(?i)(?:change|replace|rename)\s+(.+?)\s+(?:to|with)\s+(.+?)(?:\s*[.!]|$)`),
	regexp.MustCompile(`(?i)swap\s+(.+?)\s+(?:for|with)\s+(.+?)(?:\s*[.!]|$)`),
	regexp.MustCompile(`(?i)^\s*["'\x60]?(.+?)["'\x60]?\s+to\s+["'\x60]?(.+?)["'\x60]?\s*$`),
}

// DetectQuickEdit pattern-matches a prompt for a simple literal replacement.
// Returns nil when no template matches or the extracted tokens look too long
// to be a literal edit.
func DetectQuickEdit(prompt string) *domain.QuickEdit {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return nil
	}
	for _, pattern := range quickEditPatterns {
		m := pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		oldText := stripQuotes(strings.TrimSpace(m[1]))
		newText := stripQuotes(strings.TrimSpace(m[2]))
		if oldText == "" || newText == "" {
			continue
		}
		if len(oldText) >= maxQuickEditTokenLen || len(newText) >= maxQuickEditTokenLen {
			continue
		}
		return &domain.QuickEdit{OldText: oldText, NewText: newText}
	}
	return nil
}

func stripQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}

// ApplyQuickEdit replaces every case-insensitive occurrence of the edit's
// old text across all non-reserved files, preserving surrounding content.
// Returns the updated file set, total occurrences replaced, and the number
// of files touched. This path never calls the model.
func ApplyQuickEdit(files domain.FileSet, edit domain.QuickEdit) (domain.FileSet, int, int) {
	matcher := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(edit.OldText))
	out := make(domain.FileSet, len(files))
	occurrences := 0
	touched := 0
	for name, content := range files {
		if name == domain.ReservedReasoningKey {
			continue
		}
		hits := len(matcher.FindAllStringIndex(content, -1))
		if hits == 0 {
			out[name] = content
			continue
		}
		out[name] = matcher.ReplaceAllLiteralString(content, edit.NewText)
		occurrences += hits
		touched++
	}
	return out, occurrences, touched
}
