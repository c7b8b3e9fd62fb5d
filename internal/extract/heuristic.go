package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/classify"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/company"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/textutil"
)

// MaxSummaryLength bounds heuristic summaries, cut at a word boundary.
const MaxSummaryLength = 380

// maxHeuristicKeyPoints bounds the sentences harvested as key points.
const maxHeuristicKeyPoints = 3

// leadingWordsConfidence scores the first-words-of-subject company guess,
// below a pattern hit but above the unknown fallback.
const leadingWordsConfidence = 0.4

// HeuristicAdapter is the deterministic fallback extractor. It guesses the
// company from the subject line, classifies the report type by keyword
// rules, and summarizes by truncating the body preview. It never performs
// I/O, so the pipeline has no hard dependency on an external scoring
// service.
type HeuristicAdapter struct{}

// NewHeuristicAdapter returns the deterministic fallback adapter.
func NewHeuristicAdapter() *HeuristicAdapter {
	return &HeuristicAdapter{}
}

// Extract implements Adapter.
func (h *HeuristicAdapter) Extract(ctx context.Context, archive *store.Archive, userID, runID string) (*RawReport, error) {
	if archive == nil {
		return nil, fmt.Errorf("nil archive")
	}

	subject := textutil.CollapseWhitespace(archive.Subject)
	body := archive.BodyPreview
	if strings.TrimSpace(body) == "" {
		body = archive.Snippet
	}

	companyRaw, companyConf := company.ExtractCandidate(subject, body)
	if companyRaw == company.Unknown {
		// Last resort before giving up: the leading words of the subject.
		if guess := firstWords(subject, 3); company.Canonicalize(guess) != "" {
			companyRaw = guess
			companyConf = leadingWordsConfidence
		}
	}
	canonical := company.Canonicalize(companyRaw)

	classification := classify.Classify(subject, archive.Snippet+"\n"+archive.BodyPreview)

	summary := textutil.TruncateAtWordBoundary(textutil.CollapseWhitespace(body), MaxSummaryLength)

	var keyPoints []string
	for _, sentence := range textutil.DedupeStrings(textutil.SplitSentences(body)) {
		if len(sentence) < 20 {
			continue
		}
		keyPoints = append(keyPoints, textutil.TruncateAtWordBoundary(sentence, 160))
		if len(keyPoints) == maxHeuristicKeyPoints {
			break
		}
	}

	return &RawReport{
		Broker:           archive.Broker,
		CompanyRaw:       companyRaw,
		CompanyCanonical: canonical,
		ReportType:       classification.Type,
		Title:            subject,
		Summary:          summary,
		KeyPoints:        keyPoints,
		PublishedAt:      archive.DateHeader,
		Confidence:       (companyConf + classification.Confidence) / 2,
	}, nil
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
