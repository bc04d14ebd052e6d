// Package content holds the small, pure primitives the rest of the pipeline
// builds on: text normalization and content hashing.
package content

import (
	"strings"
	"unicode"
)

// Normalize strips null bytes and any rune that is neither printable nor one
// of \n, \r, \t. Collapsible whitespace is preserved as-is; callers that need
// whitespace collapsing do it themselves after normalization. Empty input
// yields empty output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))

	for _, r := range text {
		if r == 0 {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}

	return b.String()
}
