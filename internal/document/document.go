package document

import "strings"

// Tokenize splits raw text into whitespace-delimited words. Tokens keep their
// surface form: they are rendered and spoken verbatim, so no case folding or
// punctuation stripping is applied. Whitespace-only input yields no tokens.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// ContextAround returns the words within radius of pos joined by single
// spaces: the inclusive window [pos-radius, pos+radius]. Both bounds clamp to
// the sequence, so any pos is safe, and an empty sequence always yields "".
// The slice bounds make this O(radius) rather than a rescan of the whole
// document.
func ContextAround(tokens []string, pos, radius int) string {
	if len(tokens) == 0 || radius <= 0 {
		return ""
	}
	start := pos - radius
	if start < 0 {
		start = 0
	}
	if start > len(tokens) {
		start = len(tokens)
	}
	end := pos + radius + 1
	if end > len(tokens) {
		end = len(tokens)
	}
	if end < start {
		end = start
	}
	return strings.Join(tokens[start:end], " ")
}
