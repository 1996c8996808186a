package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString sanitizes a string for safe use
func SanitizeString(s string) string {
	// Remove control characters
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}

// TruncateString truncates s to at most maxRunes runes, marking the cut with "...".
func TruncateString(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// NormalizeEmail normalizes an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailLocalPart returns the part of an email before '@'.
func EmailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// MaskEmail keeps the first character of the local part, e.g. for logs.
func MaskEmail(email string) string {
	local := EmailLocalPart(email)
	if local == email || local == "" {
		return strings.Repeat("*", len(email))
	}
	return local[:1] + strings.Repeat("*", len(local)-1) + email[len(local):]
}
