// Package ingest loads archived broker-email records from export files
// into the store. Loaders are format-specific and selected by file
// extension; every format funnels into the same validation and batch
// insert, so re-importing a file is safe (existing records are skipped,
// never overwritten).
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// RawArchive is one record as it appears in an export file. Only the
// subject is required; everything else degrades gracefully downstream.
type RawArchive struct {
	ID          string `json:"id"`
	Broker      string `json:"broker"`
	SenderName  string `json:"senderName"`
	SenderEmail string `json:"senderEmail"`
	Subject     string `json:"subject"`
	Snippet     string `json:"snippet"`
	BodyPreview string `json:"bodyPreview"`
	DateHeader  string `json:"dateHeader"`
}

// Loader parses one export file format into raw archive records.
type Loader interface {
	CanHandle(path string) bool
	Load(ctx context.Context, path string) ([]RawArchive, error)
}

// Options configures an import.
type Options struct {
	UserID string
	DryRun bool
	Now    func() time.Time
	NewID  func() string
}

func (o *Options) normalize() {
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.NewID == nil {
		o.NewID = func() string { return "arc_" + uuid.NewString() }
	}
}

// Result summarizes one import.
type Result struct {
	File     string `json:"file"`
	Parsed   int    `json:"parsed"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"` // already present, or rejected as empty
	DryRun   bool   `json:"dryRun"`
}

// defaultLoaders in selection order.
func defaultLoaders() []Loader {
	return []Loader{
		&JSONLoader{},
		&CSVLoader{},
	}
}

// ImportFile loads one export file into the store for a user. Records
// without an id get a generated one, which makes re-imports of the same
// file insert fresh rows; exports that carry stable ids deduplicate
// naturally.
func ImportFile(ctx context.Context, st store.ArchiveStore, path string, opts Options) (*Result, error) {
	opts.normalize()
	if strings.TrimSpace(opts.UserID) == "" {
		return nil, fmt.Errorf("import requires a user id")
	}

	var loader Loader
	for _, l := range defaultLoaders() {
		if l.CanHandle(path) {
			loader = l
			break
		}
	}
	if loader == nil {
		return nil, fmt.Errorf("no loader for %s (supported: .json, .jsonl, .csv, .tsv)", filepath.Ext(path))
	}

	raws, err := loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	result := &Result{File: path, Parsed: len(raws), DryRun: opts.DryRun}
	now := opts.Now()

	var batch []*store.Archive
	for _, raw := range raws {
		a := toArchive(raw, opts.UserID, now, opts.NewID)
		if a == nil {
			result.Skipped++
			continue
		}
		batch = append(batch, a)
	}

	if opts.DryRun {
		result.Inserted = len(batch)
		return result, nil
	}

	inserted, err := st.AddArchiveBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	result.Inserted = inserted
	result.Skipped += len(batch) - inserted
	return result, nil
}

// toArchive validates and converts one raw record. Returns nil for
// records with no usable content.
func toArchive(raw RawArchive, userID string, now time.Time, newID func() string) *store.Archive {
	subject := strings.TrimSpace(raw.Subject)
	body := strings.TrimSpace(raw.BodyPreview)
	snippet := strings.TrimSpace(raw.Snippet)
	if subject == "" && body == "" && snippet == "" {
		return nil
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = newID()
	}

	return &store.Archive{
		ID:          id,
		UserID:      userID,
		Broker:      strings.TrimSpace(raw.Broker),
		SenderName:  strings.TrimSpace(raw.SenderName),
		SenderEmail: strings.TrimSpace(raw.SenderEmail),
		Subject:     subject,
		Snippet:     snippet,
		BodyPreview: body,
		DateHeader:  strings.TrimSpace(raw.DateHeader),
		IngestedAt:  now,
	}
}
