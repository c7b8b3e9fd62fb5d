package extract

import (
	"strings"
	"time"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/dedup"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/redact"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// Defaults substituted for missing adapter output.
const (
	DefaultBroker     = "Unmapped Broker"
	DefaultCompany    = "Unknown Company"
	DefaultReportType = "broker_note"
	DefaultTitle      = "Untitled brokerage report"
	DefaultSummary    = "No summary available."

	// MaxKeyPoints caps the key point list on a normalized report.
	MaxKeyPoints = 10

	defaultConfidence = 0.25
)

// dateHeaderLayouts are tried in order when parsing email date headers.
var dateHeaderLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02",
}

// ParseMessageDate parses an email date header or RFC 3339 timestamp,
// normalized to UTC. Returns the zero time when nothing matches.
func ParseMessageDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateHeaderLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Normalize coerces raw adapter output into an ExtractedReport, applying
// defaults, caps, and PII redaction. The report's identity fields (ID,
// dedup lineage) are left for the caller; the duplicate key is computed
// here because it depends on the normalized fields.
func Normalize(raw *RawReport, archive *store.Archive, userID, runID string, now time.Time, rc redact.Context) *store.ExtractedReport {
	r := &store.ExtractedReport{
		RunID:     runID,
		ArchiveID: archive.ID,
		UserID:    userID,
	}

	r.Broker = firstNonEmpty(raw.Broker, archive.Broker, DefaultBroker)
	r.Company = firstNonEmpty(raw.CompanyCanonical, raw.CompanyRaw, DefaultCompany)
	r.CompanyRaw = firstNonEmpty(raw.CompanyRaw, raw.CompanyCanonical, DefaultCompany)
	r.ReportType = firstNonEmpty(raw.ReportType, DefaultReportType)
	r.Title = firstNonEmpty(raw.Title, archive.Subject, DefaultTitle)
	r.Summary = firstNonEmpty(raw.Summary, DefaultSummary)

	keyPoints := raw.KeyPoints
	if len(keyPoints) > MaxKeyPoints {
		keyPoints = keyPoints[:MaxKeyPoints]
	}

	r.Confidence = raw.Confidence
	if r.Confidence == 0 {
		r.Confidence = defaultConfidence
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}

	r.PublishedAt = ParseMessageDate(raw.PublishedAt)
	if r.PublishedAt.IsZero() {
		r.PublishedAt = ParseMessageDate(archive.DateHeader)
	}
	if r.PublishedAt.IsZero() {
		r.PublishedAt = now
	}

	// Redaction at write time; callers redact again defensively when
	// serializing for external consumption.
	r.Title = redact.Redact(r.Title, rc)
	r.Summary = redact.Redact(r.Summary, rc)
	r.KeyPoints = nil
	for _, kp := range keyPoints {
		if cleaned := redact.Redact(kp, rc); cleaned != "" {
			r.KeyPoints = append(r.KeyPoints, cleaned)
		}
	}

	r.DuplicateKey = dedup.BuildKey(dedup.KeyFields{
		UserID:      userID,
		Broker:      r.Broker,
		Company:     r.Company,
		ReportType:  r.ReportType,
		Title:       r.Title,
		PublishedAt: r.PublishedAt,
	})

	r.CreatedAt = now
	r.UpdatedAt = now
	return r
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
