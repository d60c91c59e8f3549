package extract

import (
	"strings"
	"unicode/utf8"
)

// truncateAtSentence cuts text to at most maxChars runes, preferring the
// last sentence end in the second half of the window
func truncateAtSentence(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	runes := []rune(text)
	cut := string(runes[:maxChars])

	end := -1
	for _, sep := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(cut, sep); idx > end {
			end = idx
		}
	}
	if end >= len(cut)/2 {
		return strings.TrimSpace(cut[:end+1])
	}
	return strings.TrimSpace(cut)
}

// truncateForPrompt cuts text to maxChars runes and marks the cut
func truncateForPrompt(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars]) + "..."
}

// isHTML reports whether a Content-Type header names a page we can clean.
// An empty header is accepted since many servers omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.HasPrefix(ct, "text/plain")
}
