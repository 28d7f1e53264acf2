package search

import (
	"fmt"
	"strings"
)

// FormatContext renders results as a CONTEXT block of "[doc:source] text"
// lines and returns the text, its token count and the number of distinct
// sources. A positive maxTokens caps the block's size.
func FormatContext(results []ScoredDocument, maxTokens int) (string, int, int) {
	if len(results) == 0 {
		return "", 0, 0
	}
	if maxTokens < 0 {
		maxTokens = 0
	}

	var b strings.Builder
	b.WriteString("CONTEXT\n")

	contextTokens := 0
	remaining := maxTokens
	sources := make(map[string]struct{})

	for _, r := range results {
		text := strings.Join(strings.Fields(r.Content), " ")
		if text == "" {
			continue
		}
		if maxTokens > 0 {
			if remaining <= 0 {
				break
			}
			text = truncateToTokens(text, remaining)
		}

		used := estimateTokens(text)
		if used == 0 {
			continue
		}
		src := r.Source()
		fmt.Fprintf(&b, "[doc:%s] %s\n", src, text)
		contextTokens += used
		remaining -= used
		sources[src] = struct{}{}
	}

	return strings.TrimRight(b.String(), "\n"), contextTokens, len(sources)
}

// Preview shortens text to at most n runes, appending "..." when cut.
func Preview(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if n <= 0 || len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

func estimateTokens(text string) int {
	return len(strings.Fields(text))
}

func truncateToTokens(text string, maxTokens int) string {
	parts := strings.Fields(text)
	if len(parts) <= maxTokens {
		return text
	}
	return strings.Join(parts[:maxTokens], " ")
}
