package chunker

import (
	"strconv"
	"strings"
)

// visualKeywords are the markers the heuristic counts when the digit-density
// test alone isn't conclusive. Years are handled separately since they are a
// range, not a fixed token set.
var visualKeywords = []string{
	"%", "chart", "graph", "table", "figure", "axis", "source:", "year",
}

// IsVisual reports whether text looks like a chart, table, or other
// visual-derived passage that should be routed through the visual
// re-explanation step before storage. It requires length >= 80 and either a
// high digit density (> 0.35 of characters) or at least two of the visual
// keywords/year tokens (2019..2026), matched case-insensitively.
func IsVisual(text string) bool {
	if len(text) < 80 {
		return false
	}

	digits := 0
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if float64(digits)/float64(len(text)) > 0.35 {
		return true
	}

	lower := strings.ToLower(text)
	matches := 0
	for _, kw := range visualKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	for y := 2019; y <= 2026; y++ {
		if strings.Contains(lower, strconv.Itoa(y)) {
			matches++
			break
		}
	}

	return matches >= 2
}
