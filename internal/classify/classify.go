// Package classify assigns a report type to brokerage research text using
// an ordered list of keyword rules.
//
// Rule order is load-bearing: the first rule whose patterns match wins, so
// initiation outranks results_update, which outranks target_change, and so
// on. A subject-line match earns a small confidence boost over a match that
// only appears in the combined subject+body text.
package classify

import (
	"regexp"
	"strings"
)

// Report type labels.
const (
	TypeInitiation    = "initiation"
	TypeResultsUpdate = "results_update"
	TypeTargetChange  = "target_change"
	TypeRatingChange  = "rating_change"
	TypeGeneralUpdate = "general_update"
)

// Match reasons reported alongside a classification.
const (
	ReasonSubject  = "subject"
	ReasonCombined = "combined"
	ReasonFallback = "fallback"
)

const (
	subjectBoost       = 0.05
	fallbackConfidence = 0.45
)

// Result is a classification outcome.
type Result struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

type rule struct {
	reportType string
	confidence float64
	patterns   []string
	regexes    []*regexp.Regexp
}

// rules are evaluated top to bottom; do not reorder.
var rules = []rule{
	{
		reportType: TypeInitiation,
		confidence: 0.9,
		patterns:   []string{"initiat", "coverage initiated", "new coverage"},
	},
	{
		reportType: TypeResultsUpdate,
		confidence: 0.85,
		patterns:   []string{"result", "earnings", "quarterly numbers"},
		regexes: []*regexp.Regexp{
			regexp.MustCompile(`\bq[1-4](?:fy|cy)?\d{2,4}\b`),
			regexp.MustCompile(`\b(?:fy|cy)\d{2,4}\b`),
		},
	},
	{
		reportType: TypeTargetChange,
		confidence: 0.8,
		patterns:   []string{"target price", "price target", "tp revised", "target raised", "target cut", "fair value revised"},
	},
	{
		reportType: TypeRatingChange,
		confidence: 0.8,
		patterns:   []string{"upgrade", "downgrade", "rating change", "raised to buy", "cut to sell", "raised to overweight"},
	},
	{
		reportType: TypeGeneralUpdate,
		confidence: 0.6,
		patterns:   []string{"sector", "weekly", "monitor", "monthly wrap", "industry view"},
	},
}

// Classify maps subject and body text to a report type. The subject is
// checked against every rule first; if no rule matches it, the combined
// subject+body text is checked. Unmatched text falls back to
// general_update at low confidence.
func Classify(subject, body string) Result {
	subjectLower := strings.ToLower(subject)
	for _, r := range rules {
		if r.matches(subjectLower) {
			conf := r.confidence + subjectBoost
			if conf > 1.0 {
				conf = 1.0
			}
			return Result{Type: r.reportType, Confidence: conf, Reason: ReasonSubject}
		}
	}

	combined := subjectLower + "\n" + strings.ToLower(body)
	for _, r := range rules {
		if r.matches(combined) {
			return Result{Type: r.reportType, Confidence: r.confidence, Reason: ReasonCombined}
		}
	}

	return Result{Type: TypeGeneralUpdate, Confidence: fallbackConfidence, Reason: ReasonFallback}
}

func (r rule) matches(textLower string) bool {
	for _, p := range r.patterns {
		if strings.Contains(textLower, p) {
			return true
		}
	}
	for _, re := range r.regexes {
		if re.MatchString(textLower) {
			return true
		}
	}
	return false
}

// KnownTypes lists the valid report type labels in rule order, with the
// fallback last.
func KnownTypes() []string {
	return []string{TypeInitiation, TypeResultsUpdate, TypeTargetChange, TypeRatingChange, TypeGeneralUpdate}
}
