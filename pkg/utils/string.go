package utils

import "unicode/utf8"

// TruncateString shortens s to at most maxLen bytes for logging. It never
// cuts a UTF-8 sequence in half and marks the cut with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return trimToRune(s, maxLen)
	}
	return trimToRune(s, maxLen-3) + "..."
}

func trimToRune(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
