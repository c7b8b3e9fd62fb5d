package dedup

import (
	"math"
	"strings"
	"time"
)

// Config holds the semantic-duplicate thresholds. The defaults were tuned
// against real broker mail and should only change alongside a product
// decision; they are configuration so operators can experiment without a
// rebuild.
type Config struct {
	SummaryThreshold         float64 `yaml:"summary_threshold"`
	CombinedSummaryThreshold float64 `yaml:"combined_summary_threshold"`
	CombinedTitleThreshold   float64 `yaml:"combined_title_threshold"`
	WindowDays               int     `yaml:"window_days"`
}

// DefaultConfig returns the tuned threshold defaults.
func DefaultConfig() Config {
	return Config{
		SummaryThreshold:         0.78,
		CombinedSummaryThreshold: 0.62,
		CombinedTitleThreshold:   0.55,
		WindowDays:               21,
	}
}

// similarity stopwords: common glue words that inflate overlap between
// unrelated reports.
var similarityStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "has": true, "have": true, "are": true,
	"was": true, "were": true, "will": true, "its": true, "our": true,
	"their": true, "been": true, "but": true, "not": true, "his": true,
	"her": true, "they": true, "you": true, "all": true, "can": true,
}

// Candidate is the slice of an existing canonical report that semantic
// matching needs.
type Candidate struct {
	ReportID    string
	Title       string
	Summary     string
	PublishedAt time.Time
}

// TokenSet lower-cases text and returns the set of tokens with three or
// more characters, minus similarity stopwords.
func TokenSet(text string) map[string]bool {
	set := map[string]bool{}
	var tok []rune
	flush := func() {
		if len(tok) >= 3 {
			word := string(tok)
			if !similarityStopwords[word] {
				set[word] = true
			}
		}
		tok = tok[:0]
	}
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			tok = append(tok, r)
			continue
		}
		flush()
	}
	flush()
	return set
}

// Jaccard computes set-overlap similarity between two token sets. Two
// empty sets have similarity 0, not 1: an empty summary should never match
// anything.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Match describes a semantic duplicate hit.
type Match struct {
	ReportID          string
	SummarySimilarity float64
	TitleSimilarity   float64
}

// FindSemanticMatch scans candidates in their given order and returns the
// first one judged a duplicate of the new report, or nil. Candidates are
// assumed pre-filtered to the same user, broker, and canonical company;
// this function applies the publication window and similarity thresholds.
// First match wins, not best score, so iteration order is part of the
// observable behavior.
func FindSemanticMatch(title, summary string, publishedAt time.Time, candidates []Candidate, cfg Config) *Match {
	newSummary := TokenSet(summary)
	newTitle := TokenSet(title)
	window := time.Duration(cfg.WindowDays) * 24 * time.Hour

	for _, c := range candidates {
		if !withinWindow(publishedAt, c.PublishedAt, window) {
			continue
		}
		summarySim := Jaccard(newSummary, TokenSet(c.Summary))
		titleSim := Jaccard(newTitle, TokenSet(c.Title))

		if summarySim >= cfg.SummaryThreshold ||
			(summarySim >= cfg.CombinedSummaryThreshold && titleSim >= cfg.CombinedTitleThreshold) {
			return &Match{ReportID: c.ReportID, SummarySimilarity: summarySim, TitleSimilarity: titleSim}
		}
	}
	return nil
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return math.Abs(float64(a.Sub(b))) <= float64(window)
}
