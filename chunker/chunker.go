// Package chunker implements the recursive semantic chunking engine: text
// in, ordered size-bounded cleaned chunks out.
package chunker

import (
	"strings"
)

// DefaultMaxChunkSize and DefaultMinChunkSize are the chunking bounds used
// when a caller does not override them via configuration
// (chunking.max_chunk_size / chunking.min_sentence_length).
const (
	DefaultMaxChunkSize = 600
	DefaultMinChunkSize = 150
)

// Chunk splits text into an ordered list of chunks, each at most max runes
// long, with the following guarantees:
//  1. Every returned chunk has length <= max, unless it is a single token
//     (no internal whitespace) exceeding max, which is emitted unsplit.
//  2. Adjacent fragments shorter than min are merged into the preceding
//     accumulator whenever the merge keeps the result within max.
//  3. Splitting recurses paragraph-level (blank-line separated) first,
//     sentence-level (.!? followed by whitespace) second, and a halving
//     fallback third for sentences that still exceed max.
//
// Chunk is pure and deterministic: the same (text, max, min) always
// produces the same output, and it performs no I/O.
func Chunk(text string, max, min int) []string {
	if max <= 0 {
		max = DefaultMaxChunkSize
	}
	if min <= 0 {
		min = DefaultMinChunkSize
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	raw := splitIntoFragments(text, max)
	return mergeSmallFragments(raw, max, min)
}

// splitIntoFragments performs the three-level recursive split (paragraph,
// sentence, halving) without any small-fragment merging.
func splitIntoFragments(text string, max int) []string {
	var out []string
	for _, para := range splitParagraphs(text) {
		out = append(out, splitFragment(para, max)...)
	}
	return out
}

// splitFragment splits a single paragraph-level fragment further if it
// exceeds max: first by sentence, then (for sentences still over max) by
// halving.
func splitFragment(text string, max int) []string {
	if len([]rune(text)) <= max {
		return []string{text}
	}

	var out []string
	for _, sent := range splitSentences(text) {
		if len([]rune(sent)) <= max {
			out = append(out, sent)
			continue
		}
		out = append(out, halveSplit(sent, max)...)
	}
	return out
}

// halveSplit repeatedly bisects text at the nearest whitespace boundary to
// its midpoint until every piece is within max, or is a single token (no
// whitespace) that must be emitted unsplit regardless of length.
func halveSplit(text string, max int) []string {
	runes := []rune(text)
	if len(runes) <= max {
		return []string{text}
	}
	if !strings.ContainsAny(text, " \t\n\r") {
		// A single unpunctuated, unspaced token: emit unsplit per invariant 1.
		return []string{text}
	}

	mid := len(runes) / 2
	splitAt := nearestWhitespace(runes, mid)
	if splitAt <= 0 || splitAt >= len(runes) {
		// No usable boundary near the midpoint; hard-split at mid so the
		// recursion still terminates.
		splitAt = mid
	}

	left := strings.TrimSpace(string(runes[:splitAt]))
	right := strings.TrimSpace(string(runes[splitAt:]))

	var out []string
	if left != "" {
		out = append(out, halveSplit(left, max)...)
	}
	if right != "" {
		out = append(out, halveSplit(right, max)...)
	}
	return out
}

// nearestWhitespace finds the whitespace rune index closest to mid, scanning
// outward in both directions. Returns -1 if none is found.
func nearestWhitespace(runes []rune, mid int) int {
	for offset := 0; offset < len(runes); offset++ {
		if mid-offset >= 0 && isWhitespace(runes[mid-offset]) {
			return mid - offset
		}
		if mid+offset < len(runes) && isWhitespace(runes[mid+offset]) {
			return mid + offset
		}
	}
	return -1
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// mergeSmallFragments walks fragments in order, merging a fragment into the
// running accumulator whenever either the accumulator or the fragment is
// shorter than min, as long as the merge does not push the accumulator past
// max.
func mergeSmallFragments(fragments []string, max, min int) []string {
	var out []string
	var acc string

	flush := func() {
		if acc != "" {
			out = append(out, acc)
			acc = ""
		}
	}

	for _, f := range fragments {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if acc == "" {
			acc = f
			continue
		}
		if len([]rune(acc)) < min || len([]rune(f)) < min {
			merged := acc + "\n\n" + f
			if len([]rune(merged)) <= max {
				acc = merged
				continue
			}
		}
		flush()
		acc = f
	}
	flush()

	return out
}

// CountTokens returns the Chunk Record / Global Content Index Entry
// "tokens" attribute: a whitespace-delimited word count of text.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// splitParagraphs splits text on blank-line boundaries.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

// splitSentences is a simple sentence tokenizer. It splits on
// period/question-mark/exclamation followed by whitespace or end of string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || isWhitespace(runes[i+1]) {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}
