package provider

import (
	"regexp"
	"sort"
	"strings"
)

// RedactionToken replaces credentials in error text.
const RedactionToken = redacted

// vendorKeyPattern matches recognizable vendor key shapes: Anthropic
// (sk-ant-...), OpenAI (sk-..., sk-proj-...) and Google (AIza...). Keys
// must start at a word boundary so words like "risk-management" survive.
var vendorKeyPattern = regexp.MustCompile(`\b(?:sk-ant-[A-Za-z0-9_\-]*|sk-[A-Za-z0-9_\-]{8,}|AIza[0-9A-Za-z_\-]{20,})`)

// Redact replaces every non-empty secret and any vendor-key-shaped
// substring in text with RedactionToken.
func Redact(text string, secrets ...string) string {
	// Longest first so a secret that contains another is fully replaced.
	sorted := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	for _, s := range sorted {
		text = strings.ReplaceAll(text, s, RedactionToken)
	}
	return vendorKeyPattern.ReplaceAllString(text, RedactionToken)
}
