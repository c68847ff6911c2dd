package generate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"sitesmith/internal/domain"
)

// RepairFileMap turns raw, possibly-truncated model output into a mapping of
// filename to file content. Tiers are attempted in order: direct parse,
// light repair, manual per-entry extraction, bare-HTML fallback. Only total
// failure returns an error (wrapping domain.ErrUnsalvageable).
func RepairFileMap(raw string) (domain.FileSet, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty output", domain.ErrUnsalvageable)
	}

	if files, ok := tryParseFileMap(cleaned); ok {
		return finishFileMap(files), nil
	}

	if files, ok := tryParseFileMap(lightRepair(cleaned)); ok {
		return finishFileMap(files), nil
	}

	if files := extractFileEntries(cleaned); len(files) > 0 {
		return finishFileMap(files), nil
	}

	if looksLikeHTMLDocument(cleaned) {
		return finishFileMap(map[string]string{"index.html": cleaned}), nil
	}

	return nil, fmt.Errorf("%w: no file entries recovered", domain.ErrUnsalvageable)
}

func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```JSON")
		trimmed = strings.TrimPrefix(trimmed, "```html")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}

func tryParseFileMap(text string) (map[string]string, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}
	files := make(map[string]string, len(raw))
	for name, value := range raw {
		content, ok := value.(string)
		if !ok {
			continue
		}
		files[name] = content
	}
	if len(files) == 0 {
		return nil, false
	}
	return files, true
}

// lightRepair fixes the common ways truncated or sloppy model output breaks
// JSON: stray angle-bracket escapes, raw control characters inside string
// values, and trailing garbage after the final closing brace.
func lightRepair(text string) string {
	text = strings.ReplaceAll(text, `\<`, "<")
	text = strings.ReplaceAll(text, `\>`, ">")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				continue
			}
			b.WriteRune(r)
		}
	}
	repaired := b.String()

	if !strings.HasSuffix(strings.TrimSpace(repaired), "}") {
		if idx := strings.LastIndex(repaired, "}"); idx >= 0 {
			repaired = repaired[:idx+1]
		}
	}
	return repaired
}

var fileEntryPattern = regexp.MustCompile(`"([\w./-]+\.html?)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// extractFileEntries scans for locally well-formed "name.html": "content"
// segments, tolerating syntactically broken entries elsewhere in the payload.
func extractFileEntries(text string) map[string]string {
	matches := fileEntryPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	files := make(map[string]string, len(matches))
	for _, m := range matches {
		files[m[1]] = decodeJSONEscapes(m[2])
	}
	return files
}

func decodeJSONEscapes(s string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &decoded); err == nil {
		return decoded
	}
	replacer := strings.NewReplacer(
		`\"`, `"`,
		`\n`, "\n",
		`\t`, "\t",
		`\r`, "",
		`\/`, "/",
		`\\`, `\`,
	)
	return replacer.Replace(s)
}

func looksLikeHTMLDocument(text string) bool {
	lowered := strings.ToLower(text)
	return strings.Contains(lowered, "<!doctype") || strings.Contains(lowered, "<html")
}

// finishFileMap applies the shared unescape post-process and strips the
// reserved reasoning key from the final mapping.
func finishFileMap(files map[string]string) domain.FileSet {
	out := make(domain.FileSet, len(files))
	for name, content := range files {
		if name == domain.ReservedReasoningKey {
			continue
		}
		out[name] = Unescape(content)
	}
	return out
}
