package generate

import "strings"

// Unescape removes literal backslash escape sequences that leak through
// from JSON-habituated model output into file content. It is idempotent on
// already-clean content.
func Unescape(content string) string {
	if !strings.Contains(content, `\`) {
		return content
	}
	replacer := strings.NewReplacer(
		`\\n`, "\n",
		`\n`, "\n",
		`\\t`, "\t",
		`\t`, "\t",
		`\\r`, "",
		`\r`, "",
		`\"`, `"`,
		`\<`, "<",
		`\>`, ">",
		`\\`, `\`,
	)
	return replacer.Replace(content)
}

// UnescapeAll applies Unescape to every file in the map, in place on a copy.
func UnescapeAll(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for name, content := range files {
		out[name] = Unescape(content)
	}
	return out
}
