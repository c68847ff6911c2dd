package generate

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitesmith/internal/domain"
)

// maxContextExcerpt caps the per-file excerpt included as modification
// context.
const maxContextExcerpt = 4000

// maxHomeExcerpt caps the home-page excerpt passed to later pages for
// stylistic consistency.
const maxHomeExcerpt = 2000

var titleCaser = cases.Title(language.English)

// ModificationIntent classifies what kind of change a prompt asks for.
type ModificationIntent string

const (
	IntentNewPage ModificationIntent = "new_page"
	IntentBugFix  ModificationIntent = "bug_fix"
	IntentStyle   ModificationIntent = "style"
	IntentContent ModificationIntent = "content"
	IntentGeneral ModificationIntent = "general"
)

// ClassifyModification applies keyword heuristics to steer the modification
// prompt. Isolated here so it can be swapped for a model-based classifier
// without touching orchestration.
func ClassifyModification(prompt string) ModificationIntent {
	lowered := strings.ToLower(prompt)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lowered, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("add") && has("page", "section"):
		return IntentNewPage
	case has("fix", "bug", "broken", "error"):
		return IntentBugFix
	case has("color", "style", "font", "theme", "design", "look"):
		return IntentStyle
	case has("change", "update", "edit", "modify", "replace", "text"):
		return IntentContent
	default:
		return IntentGeneral
	}
}

func intentInstruction(intent ModificationIntent) string {
	switch intent {
	case IntentNewPage:
		return "Add the requested page or section, matching the existing site's navigation, styling and tone. Link it from every page's navigation."
	case IntentBugFix:
		return "Find and fix the described problem. Return corrected complete files; do not introduce unrelated changes."
	case IntentStyle:
		return "Apply the requested visual change consistently across all affected files while keeping content intact."
	case IntentContent:
		return "Apply the requested content edit precisely, keeping layout and styling untouched."
	default:
		return "Apply the requested change across the site as appropriate."
	}
}

// NewSiteSystemPrompt instructs full site generation as a JSON file map.
func NewSiteSystemPrompt(locale string) string {
	var b strings.Builder
	b.WriteString("You are an expert web developer generating a complete, production-quality static website. ")
	b.WriteString("Respond with ONLY a JSON object mapping filenames to complete file contents, for example ")
	b.WriteString(`{"index.html": "<!DOCTYPE html>..."}. `)
	b.WriteString("Every page must be a self-contained HTML document with embedded CSS, responsive layout, and consistent navigation. ")
	b.WriteString(`You may include a "_reasoning" key with a short explanation of your choices.`)
	if locale != "" {
		fmt.Fprintf(&b, " Write all visible copy in the language for locale %q.", locale)
	}
	return b.String()
}

// ModificationSystemPrompt lists current filenames and instructs the model
// to classify the request and return complete replacement files as JSON.
func ModificationSystemPrompt(files domain.FileSet, locale string) string {
	names := make([]string, 0, len(files))
	for name := range files {
		if name == domain.ReservedReasoningKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("You are an expert web developer modifying an existing static website. ")
	fmt.Fprintf(&b, "Current files: %s. ", strings.Join(names, ", "))
	b.WriteString("First classify the request (bug fix, style change, content edit, new page, or general), then apply it. ")
	b.WriteString("Respond with ONLY a JSON object mapping filenames to COMPLETE replacement file contents. ")
	b.WriteString("Only include files you changed or added. ")
	b.WriteString(`You may include a "_reasoning" key with a short explanation.`)
	if locale != "" {
		fmt.Fprintf(&b, " Keep visible copy in the language for locale %q.", locale)
	}
	return b.String()
}

// ModificationUserMessage builds the user turn for a modification request:
// heuristic intent instruction plus an annotated, truncated excerpt of every
// existing file.
func ModificationUserMessage(prompt string, files domain.FileSet) string {
	intent := ClassifyModification(prompt)

	var b strings.Builder
	fmt.Fprintf(&b, "Request: %s\n\n", prompt)
	fmt.Fprintf(&b, "Instruction: %s\n", intentInstruction(intent))

	names := make([]string, 0, len(files))
	for name := range files {
		if name == domain.ReservedReasoningKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := files[name]
		truncated := false
		if len(content) > maxContextExcerpt {
			content = content[:maxContextExcerpt]
			truncated = true
		}
		fmt.Fprintf(&b, "\n--- %s", name)
		if truncated {
			b.WriteString(" (truncated)")
		}
		b.WriteString(" ---\n")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}

// NavLink is one entry of the shared navigation passed to every page prompt.
type NavLink struct {
	Label string
	Href  string
}

// NavLinks derives the shared navigation from the planned page names, each
// label title-cased.
func NavLinks(pageNames []string) []NavLink {
	links := make([]NavLink, 0, len(pageNames))
	for _, name := range pageNames {
		label := titleCaser.String(strings.ReplaceAll(name, "-", " "))
		href := name + ".html"
		if name == "home" {
			href = "index.html"
		}
		links = append(links, NavLink{Label: label, Href: href})
	}
	return links
}

// PageFilename maps a planned page name to its output file.
func PageFilename(name string) string {
	if name == "home" {
		return "index.html"
	}
	return name + ".html"
}

const designSystemPrompt = "You are a senior web designer. Produce a short design " +
	"specification for the described website: color palette (hex values), " +
	"typography, and layout notes. Plain text, under 200 words."

// FallbackDesignSpec is used when the design-spec call fails; generation
// proceeds rather than aborting.
const FallbackDesignSpec = "Color palette: #1a1a2e background, #e94560 accent, " +
	"#f5f5f5 text. Typography: system-ui sans-serif, generous line height. " +
	"Layout: sticky top navigation, hero section, card grids, footer with links. " +
	"Modern, clean, fully responsive."

// PagePrompt builds the user message for a single page generation call.
func PagePrompt(sitePrompt, pageName, designSpec string, nav []NavLink, homeExcerpt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Site description: %s\n\n", sitePrompt)
	fmt.Fprintf(&b, "Generate the complete %q page (%s).\n\n", pageName, PageFilename(pageName))
	fmt.Fprintf(&b, "Design specification:\n%s\n\n", designSpec)
	b.WriteString("Shared navigation (use exactly these links on every page):\n")
	for _, link := range nav {
		fmt.Fprintf(&b, "- %s -> %s\n", link.Label, link.Href)
	}
	if homeExcerpt != "" {
		if len(homeExcerpt) > maxHomeExcerpt {
			homeExcerpt = homeExcerpt[:maxHomeExcerpt]
		}
		fmt.Fprintf(&b, "\nMatch the structure and styling of the home page. Excerpt:\n%s\n", homeExcerpt)
	}
	b.WriteString("\nRespond with ONLY the raw HTML document, no markdown fences, no commentary.")
	return b.String()
}

const pageSystemPrompt = "You are an expert web developer. Generate one complete, " +
	"self-contained HTML page with embedded CSS. Respond with only the raw HTML document."

// CoerceHTMLDocument ensures a generated page starts with a doctype and ends
// with a closing html tag when the model omitted them.
func CoerceHTMLDocument(content string) string {
	trimmed := strings.TrimSpace(stripCodeFences(content))
	lowered := strings.ToLower(trimmed)
	if !strings.HasPrefix(lowered, "<!doctype") {
		trimmed = "<!DOCTYPE html>\n" + trimmed
		lowered = strings.ToLower(trimmed)
	}
	if !strings.HasSuffix(lowered, "</html>") {
		trimmed += "\n</html>"
	}
	return trimmed
}
