// Package textutil provides the text normalization primitives shared by the
// extraction pipeline:
// - Whitespace collapsing and word-boundary-aware truncation
// - Sentence splitting for key-point harvesting
// - Case-insensitive string de-duplication
// - Key-safe normalization (stopword stripping, non-alphanumeric folding)
//
// Everything here is pure and deterministic; the duplicate-key builder and
// the classifier both depend on that.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	nonAlnumRe    = regexp.MustCompile(`[^a-z0-9]+`)
	sentenceEndRe = regexp.MustCompile(`([.!?])\s+`)
)

// KeyStopwords are dropped during key-safe normalization. The set is part of
// the duplicate-key contract; extending it changes every stored key.
var KeyStopwords = map[string]bool{
	"the": true, "a": true, "an": true,
	"report": true, "note": true, "update": true,
}

// CollapseWhitespace replaces every run of whitespace with a single space
// and trims the result.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// TruncateAtWordBoundary truncates s to maxLen, cutting at the last space
// before maxLen.
func TruncateAtWordBoundary(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := strings.LastIndex(s[:maxLen], " ")
	if cut <= 0 {
		cut = maxLen // No space found, hard truncate
	}
	return strings.TrimRight(s[:cut], " ")
}

// SplitSentences splits free text into trimmed sentences. Terminators are
// ., ! and ? followed by whitespace; newlines also end a sentence. Empty
// fragments are dropped.
func SplitSentences(s string) []string {
	marked := sentenceEndRe.ReplaceAllString(s, "$1\n")
	parts := strings.Split(marked, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DedupeStrings removes duplicates from items using case-insensitive
// identity, keeping the first occurrence and its original casing.
func DedupeStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// NormalizeKeyText reduces s to the key-safe form used for exact duplicate
// keys: lower-case, "&" folded to "and", non-alphanumerics collapsed to
// single spaces, KeyStopwords removed, whitespace collapsed. Returns "" when
// nothing survives; callers substitute their per-field fallback.
func NormalizeKeyText(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonAlnumRe.ReplaceAllString(s, " ")
	tokens := strings.Fields(s)
	kept := tokens[:0]
	for _, tok := range tokens {
		if !KeyStopwords[tok] {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}

// TitleCaseToken upper-cases the first letter of tok and lower-cases the
// rest. Non-letter leading runes are left alone.
func TitleCaseToken(tok string) string {
	if tok == "" {
		return tok
	}
	runes := []rune(strings.ToLower(tok))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
