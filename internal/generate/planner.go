package generate

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"sitesmith/internal/providers/chat"
)

const maxPlannedPages = 10

const plannerSystemPrompt = "You are a website information architect. " +
	"Given a site description, respond with ONLY a JSON array of page name " +
	"tokens, lowercase and hyphenated, always starting with \"home\". " +
	"Example: [\"home\",\"about\",\"contact\"]. No prose, no markdown."

var bracketArrayPattern = regexp.MustCompile(`\[[^\[\]]*\]`)

// PlanPages asks the model which pages the site needs and normalizes the
// answer. It never returns an error: any provider or parsing failure falls
// through to the deterministic keyword fallback.
func PlanPages(ctx context.Context, client chat.Completer, model, prompt string) []string {
	if client == nil {
		return FallbackPageNames(prompt)
	}
	resp, err := client.Complete(ctx, chat.Request{
		Model: model,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: plannerSystemPrompt},
			{Role: chat.RoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil || resp == nil {
		return FallbackPageNames(prompt)
	}
	fragment := bracketArrayPattern.FindString(resp.Content)
	if fragment == "" {
		return FallbackPageNames(prompt)
	}
	var names []string
	if err := json.Unmarshal([]byte(fragment), &names); err != nil || len(names) == 0 {
		return FallbackPageNames(prompt)
	}
	return normalizePageNames(names)
}

var fallbackKeywords = []struct {
	keyword string
	page    string
}{
	{"about", "about"},
	{"contact", "contact"},
	{"pricing", "pricing"},
	{"blog", "blog"},
	{"technology", "technology"},
	{"feature", "features"},
	{"team", "team"},
	{"service", "services"},
	{"portfolio", "portfolio"},
	{"doc", "docs"},
}

var explicitPagesPattern = regexp.MustCompile(`(?i)pages?\s*:\s*([a-z0-9 ,\-]+(?:\band\b[a-z0-9 \-]+)?)`)

// FallbackPageNames derives a page list from the prompt without any network
// dependency: an explicit "pages: a, b, c" listing wins, else independent
// keyword containment checks seed a list with "home".
func FallbackPageNames(prompt string) []string {
	lowered := strings.ToLower(prompt)

	if m := explicitPagesPattern.FindStringSubmatch(lowered); m != nil {
		listed := regexp.MustCompile(`\s*(?:,|\band\b)\s*`).Split(m[1], -1)
		names := make([]string, 0, len(listed)+1)
		for _, name := range listed {
			name = strings.TrimSpace(name)
			if name != "" {
				names = append(names, name)
			}
		}
		if len(names) > 0 {
			return normalizePageNames(names)
		}
	}

	names := []string{"home"}
	for _, entry := range fallbackKeywords {
		if strings.Contains(lowered, entry.keyword) {
			names = append(names, entry.page)
		}
	}
	return normalizePageNames(names)
}

var pageNameCleaner = regexp.MustCompile(`[^a-z0-9-]+`)

// normalizePageNames lowercases and hyphenates every entry, dedupes, forces
// "home" first, and caps the list at maxPlannedPages.
func normalizePageNames(names []string) []string {
	out := []string{"home"}
	seen := map[string]struct{}{"home": {}}
	for _, name := range names {
		cleaned := strings.ToLower(strings.TrimSpace(name))
		cleaned = strings.ReplaceAll(cleaned, " ", "-")
		cleaned = pageNameCleaner.ReplaceAllString(cleaned, "")
		cleaned = strings.Trim(cleaned, "-")
		if cleaned == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
		if len(out) == maxPlannedPages {
			break
		}
	}
	return out
}
