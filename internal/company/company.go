// Package company extracts and canonicalizes company names from brokerage
// email subjects and bodies.
//
// Canonicalization reduces a raw name to a stable token sequence: legal
// suffixes and report-noise words are stripped, quarter/fiscal-year markers
// removed, and tokens title-cased except acronyms seen in the original
// text, which stay upper-case. Candidate extraction tries an ordered list
// of patterns and returns the first plausible hit with a source-dependent
// confidence.
package company

import (
	"regexp"
	"strings"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/textutil"
)

// Unknown is the fallback name when no plausible candidate is found.
const Unknown = "Unknown Company"

// Confidence levels by candidate source.
const (
	SubjectConfidence  = 0.9
	BodyConfidence     = 0.65
	FallbackConfidence = 0.25
)

var legalSuffixes = map[string]bool{
	"co": true, "corp": true, "corporation": true, "inc": true,
	"incorporated": true, "ltd": true, "limited": true, "llc": true,
	"llp": true, "plc": true, "pvt": true, "private": true, "sa": true,
	"ag": true, "nv": true, "bv": true, "gmbh": true, "pte": true,
	"holdings": true, "holding": true,
}

var noiseTokens = map[string]bool{
	"update": true, "updates": true, "results": true, "result": true,
	"earnings": true, "coverage": true, "initiation": true, "initiating": true,
	"rating": true, "ratings": true, "buy": true, "sell": true, "hold": true,
	"neutral": true, "overweight": true, "underweight": true, "accumulate": true,
	"reduce": true, "report": true, "note": true, "research": true,
	"preview": true, "review": true, "flash": true, "alert": true,
	"upgrade": true, "downgrade": true, "target": true, "price": true,
	"quarterly": true, "annual": true, "call": true, "takeaways": true,
}

var (
	quarterTokenRe = regexp.MustCompile(`^(?:q[1-4](?:fy|cy)?\d{2,4}|(?:fy|cy)\d{2,4})$`)
	acronymRunRe   = regexp.MustCompile(`\b[A-Z][A-Z0-9]+\b`)
	nonAlnumRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Canonicalize reduces raw free text to a canonical company name. Returns
// "" when nothing survives filtering; callers fall back to Unknown.
func Canonicalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	// Acronyms are detected against the original casing before folding.
	acronyms := map[string]bool{}
	for _, run := range acronymRunRe.FindAllString(raw, -1) {
		acronyms[strings.ToLower(run)] = true
	}

	s := strings.ToLower(raw)
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonAlnumRe.ReplaceAllString(s, " ")

	var kept []string
	for _, tok := range strings.Fields(s) {
		switch {
		case legalSuffixes[tok]:
		case noiseTokens[tok]:
		case quarterTokenRe.MatchString(tok):
		case acronyms[tok]:
			kept = append(kept, strings.ToUpper(tok))
		default:
			kept = append(kept, textutil.TitleCaseToken(tok))
		}
	}
	return strings.Join(kept, " ")
}

// Ordered candidate patterns. Order is significant: explicit action phrasing
// beats separator splitting beats preposition scanning.
var candidateRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.{2,80}?)\s+(?:upgraded|downgraded|initiated|reiterated|maintained|re-rated)\b`),
	regexp.MustCompile(`^(.{2,80}?)\s*[:\x{2013}|-]\s`),
	regexp.MustCompile(`(?i)\b(?:on|of|for)\s+(.{2,60}?)(?:\s*[-:|,;(]|\s+(?:q[1-4]|fy\d|cy\d)|$)`),
	regexp.MustCompile(`(?i)^(.{2,80}?)\s+(?:results|earnings|quarterly|coverage|initiation|q[1-4])\b`),
}

var jargonWords = map[string]bool{
	"buy": true, "sell": true, "hold": true, "target": true, "rating": true,
	"update": true, "results": true, "earnings": true, "sector": true,
	"weekly": true, "monitor": true, "initiation": true, "initiating": true,
	"coverage": true, "upgrade": true, "downgrade": true, "note": true,
}

// ExtractCandidate finds the most likely company name in a subject and
// body, returning the raw candidate and a confidence. Subject-derived
// candidates score higher than body-derived ones; when neither yields a
// plausible candidate, Unknown is returned at low confidence.
func ExtractCandidate(subject, body string) (string, float64) {
	if name := firstPlausible(subject); name != "" {
		return name, SubjectConfidence
	}
	if name := firstPlausible(body); name != "" {
		return name, BodyConfidence
	}
	return Unknown, FallbackConfidence
}

func firstPlausible(text string) string {
	text = textutil.CollapseWhitespace(text)
	if text == "" {
		return ""
	}
	for _, re := range candidateRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		cand := strings.TrimSpace(m[1])
		if isPlausible(cand) {
			return cand
		}
	}
	return ""
}

// isPlausible filters out candidates that are report jargon rather than
// names: 2-100 chars, at most 8 tokens, not a pure noise word, and no
// residual jargon token.
func isPlausible(cand string) bool {
	if len(cand) < 2 || len(cand) > 100 {
		return false
	}
	tokens := strings.Fields(strings.ToLower(cand))
	if len(tokens) == 0 || len(tokens) > 8 {
		return false
	}
	for _, tok := range tokens {
		if jargonWords[strings.Trim(tok, ".,:;")] {
			return false
		}
	}
	return true
}
