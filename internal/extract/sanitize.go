package extract

import (
	"strings"
	"unicode/utf8"
)

// SanitizeUTF8 drops invalid UTF-8 bytes and NUL runes. Postgres rejects both
// in text columns.
func SanitizeUTF8(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if (r == utf8.RuneError && size == 1) || r == 0 {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
