package logger

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxFieldLength caps how much of an untrusted value ends up in a log line.
const MaxFieldLength = 256

// SanitizeForLog escapes control characters in a string to prevent log injection attacks.
// Unicode is preserved; newlines, tabs, NUL, ANSI escapes and other control
// characters are escaped. Values longer than MaxFieldLength runes are cut and
// suffixed with "...".
func SanitizeForLog(s string) string {
	var result strings.Builder
	result.Grow(min(len(s), MaxFieldLength+3))

	n := 0
	for _, r := range s {
		if n == MaxFieldLength {
			result.WriteString("...")
			break
		}
		n++
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		case '\x00':
			result.WriteString("\\x00")
		case utf8.RuneError:
			result.WriteString("\\ufffd")
		default:
			if r < 32 || r == 127 {
				result.WriteString(fmt.Sprintf("\\x%02x", r))
			} else {
				result.WriteRune(r)
			}
		}
	}
	return result.String()
}
