package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JSONLoader handles .json (array of records) and .jsonl (one record per
// line) export files.
type JSONLoader struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONLoader) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".json" || ext == ".jsonl"
}

// Load parses a JSON export. A .json file must contain an array of
// records; a .jsonl file has one record per non-empty line and tolerates
// blank lines and // comment lines.
func (j *JSONLoader) Load(ctx context.Context, path string) ([]RawArchive, error) {
	if strings.ToLower(filepath.Ext(path)) == ".jsonl" {
		return j.loadLines(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var records []RawArchive
	if err := json.Unmarshal(data, &records); err != nil {
		// A single-object export is accepted too.
		var one RawArchive
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
		}
		records = []RawArchive{one}
	}
	return records, nil
}

func (j *JSONLoader) loadLines(path string) ([]RawArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []RawArchive
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec RawArchive
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d of %s: %w", lineNo, path, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}
