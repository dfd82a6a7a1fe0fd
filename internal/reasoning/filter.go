// Package reasoning strips the deliberation markup some models emit ahead of
// their final answer.
package reasoning

import (
	"regexp"
	"strings"
)

var (
	thinkTag     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkingTag  = regexp.MustCompile(`(?is)<thinking>.*?</thinking>`)
	thinkingBrkt = regexp.MustCompile(`(?is)\[thinking\].*?\[/thinking\]`)
	blankLines   = regexp.MustCompile(`(?m)^[ \t\r\f\v]*\n`)
)

// Filter removes <think>, <thinking> and [thinking] spans (case-insensitive),
// drops blank lines and trims the result. Unterminated tags are left in place.
func Filter(raw string) string {
	if raw == "" {
		return raw
	}
	cleaned := untilStable(raw, removeSpans)
	cleaned = untilStable(cleaned, func(s string) string {
		return blankLines.ReplaceAllString(s, "")
	})
	return strings.TrimSpace(cleaned)
}

// removeSpans applies one pass of every span pattern. A removal can splice the
// halves of an outer tag together, so callers repeat it until nothing changes.
func removeSpans(s string) string {
	s = thinkTag.ReplaceAllString(s, "")
	s = thinkingTag.ReplaceAllString(s, "")
	return thinkingBrkt.ReplaceAllString(s, "")
}

func untilStable(s string, step func(string) string) string {
	for {
		next := step(s)
		if next == s {
			return s
		}
		s = next
	}
}
