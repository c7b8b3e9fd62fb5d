package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CSVLoader handles .csv and .tsv export files.
type CSVLoader struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVLoader) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Load parses a CSV export. The first row is a header; column names are
// matched case-insensitively against the record field names, with
// snake_case accepted as well. Unknown columns are ignored.
func (c *CSVLoader) Load(ctx context.Context, path string) ([]RawArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing CSV %s: %w", path, err)
	}
	if len(rows) < 2 {
		// Headers only, or empty.
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	var records []RawArchive
	for _, row := range rows[1:] {
		var rec RawArchive
		empty := true
		for i, val := range row {
			if i >= len(headers) {
				break
			}
			val = strings.TrimSpace(val)
			if val == "" {
				continue
			}
			empty = false
			switch headers[i] {
			case "id", "archiveid", "messageid":
				rec.ID = val
			case "broker":
				rec.Broker = val
			case "sendername", "sender":
				rec.SenderName = val
			case "senderemail", "from":
				rec.SenderEmail = val
			case "subject":
				rec.Subject = val
			case "snippet":
				rec.Snippet = val
			case "bodypreview", "body":
				rec.BodyPreview = val
			case "dateheader", "date":
				rec.DateHeader = val
			}
		}
		if empty {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(h)
}
