// Package extract turns one archived email record into one structured
// report candidate.
//
// The extraction strategy is pluggable behind the Adapter interface: the
// heuristic adapter in this package is deterministic and always available,
// and an OpenAI-compatible HTTP adapter can be layered on top for smarter
// extraction. Whatever the adapter, its raw output passes through the same
// normalization (defaults, caps, PII redaction) before anything is stored.
package extract

import (
	"context"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// RawReport is the adapter output contract. Fields may be empty; the
// normalizer substitutes defaults.
type RawReport struct {
	Broker           string   `json:"broker"`
	CompanyRaw       string   `json:"companyRaw"`
	CompanyCanonical string   `json:"companyCanonical"`
	ReportType       string   `json:"reportType"`
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"keyPoints"`
	PublishedAt      string   `json:"publishedAt"` // RFC 3339 or email date header
	Confidence       float64  `json:"confidence"`
}

// Adapter turns one archive record into one raw report candidate. An error
// (or a nil result) is recorded as a per-archive failure by the caller;
// it never fails the whole run. Implementations must bound their own
// external calls and return an error rather than hang.
type Adapter interface {
	Extract(ctx context.Context, archive *store.Archive, userID, runID string) (*RawReport, error)
}
