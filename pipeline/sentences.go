package pipeline

import "strings"

// DefaultSentences is how many sentences a parsed completion keeps.
const DefaultSentences = 3

// TruncateSentences keeps the first n period-delimited fragments of text, rejoined with ". ".
// It splits on every literal '.', so abbreviations and decimals count as sentence breaks.
// Text without periods comes back trimmed and otherwise unchanged.
func TruncateSentences(text string, n int) string {
	if n <= 0 {
		n = DefaultSentences
	}
	fragments := strings.Split(text, ".")
	if len(fragments) > n {
		fragments = fragments[:n]
	}
	return strings.TrimSpace(strings.Join(fragments, ". "))
}

const (
	simplifyWords = 5
	simplifyRunes = 30
)

// Simplify shortens a product name to its first five words and at most 30 characters,
// which keeps prompts readable for long catalog names.
func Simplify(name string) string {
	words := strings.Split(name, " ")
	if len(words) > simplifyWords {
		words = words[:simplifyWords]
	}
	simple := strings.TrimSpace(strings.Join(words, " "))

	runes := []rune(simple)
	if len(runes) > simplifyRunes {
		simple = string(runes[:simplifyRunes])
	}
	return simple
}
