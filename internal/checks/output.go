package checks

import "strings"

// truncatedMarker prefixes output that Tail shortened.
const truncatedMarker = "…(truncated)\n"

// Combine joins stdout and stderr the way a terminal would show them.
func Combine(stdout, stderr string) string {
	return joinNonEmpty(stdout, stderr)
}

// Tail keeps the last max bytes of s. Error summaries and tracebacks are
// usually at the end. A max of zero or less keeps everything.
func Tail(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := len(s) - max
	// don't split a UTF-8 sequence
	for cut < len(s) && !isRuneStart(s[cut]) {
		cut++
	}
	return truncatedMarker + s[cut:]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
