// Package dedup implements the two-tier duplicate detection used by the
// extraction pipeline: a deterministic exact-match key built from the
// report's identity fields, and a fuzzy token-overlap comparison for
// reports that escaped exact matching.
package dedup

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/textutil"
)

// Per-field fallbacks substituted when key normalization empties a field.
const (
	fallbackUser    = "unknown-user"
	fallbackBroker  = "unknown-broker"
	fallbackCompany = "unknown-company"
	fallbackType    = "general_update"
	fallbackTitle   = "untitled"

	// UnknownDayBucket is used when the published timestamp is absent.
	UnknownDayBucket = "unknown-day"
)

// KeyFields are the inputs to the exact duplicate key.
type KeyFields struct {
	UserID      string
	Broker      string
	Company     string
	ReportType  string
	Title       string
	PublishedAt time.Time
}

// DayBucket returns the UTC calendar day of t as YYYY-MM-DD, or
// UnknownDayBucket for the zero time.
func DayBucket(t time.Time) string {
	if t.IsZero() {
		return UnknownDayBucket
	}
	return t.UTC().Format("2006-01-02")
}

// BuildKey produces the exact duplicate key for a report:
//
//	rpt_<dayBucket>_<first 24 hex chars of sha256>
//
// The hash covers exactly six pipe-joined normalized fields in a fixed
// order: user id, broker, canonical company, report type, title, day
// bucket. Field order is part of the persisted-key contract; reordering
// silently changes every stored key.
func BuildKey(f KeyFields) string {
	day := DayBucket(f.PublishedAt)
	joined := strings.Join([]string{
		normalizeField(f.UserID, fallbackUser),
		normalizeField(f.Broker, fallbackBroker),
		normalizeField(f.Company, fallbackCompany),
		normalizeField(f.ReportType, fallbackType),
		normalizeField(f.Title, fallbackTitle),
		day,
	}, "|")

	sum := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("rpt_%s_%s", day, fmt.Sprintf("%x", sum)[:24])
}

func normalizeField(s, fallback string) string {
	if n := textutil.NormalizeKeyText(s); n != "" {
		return n
	}
	return fallback
}
