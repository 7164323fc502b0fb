package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims s, drops control characters other than newlines and
// tabs, and truncates to maxRunes without splitting a multi-byte character.
func SanitizeString(s string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(s))
	if maxRunes > 0 {
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}
