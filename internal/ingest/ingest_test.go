package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.StoreConfig{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func testOptions(userID string) Options {
	seq := 0
	return Options{
		UserID: userID,
		Now:    func() time.Time { return time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("arc_gen%d", seq)
		},
	}
}

func TestImportJSONArray(t *testing.T) {
	s := newTestStore(t)
	path := writeFile(t, "export.json", `[
		{"id": "m1", "broker": "Axis Capital", "subject": "Infosys initiation", "bodyPreview": "We initiate coverage."},
		{"id": "m2", "broker": "Kotak", "subject": "HDFC Bank results", "dateHeader": "Mon, 13 Jul 2026 09:30:00 +0000"},
		{"id": "m3"}
	]`)

	res, err := ImportFile(context.Background(), s, path, testOptions("user-1"))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Parsed != 3 || res.Inserted != 2 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 3 parsed, 2 inserted, 1 skipped", res)
	}

	archives, err := s.ListArchives(context.Background(), "user-1", store.ArchiveQuery{})
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(archives) != 2 {
		t.Fatalf("stored %d archives, want 2", len(archives))
	}
	if archives[0].Broker != "Axis Capital" {
		t.Errorf("first archive = %+v", archives[0])
	}
}

func TestImportJSONLines(t *testing.T) {
	s := newTestStore(t)
	path := writeFile(t, "export.jsonl",
		`{"id": "m1", "subject": "Note one", "broker": "Axis Capital"}

// trailing comment line
{"id": "m2", "subject": "Note two", "broker": "Kotak"}
`)

	res, err := ImportFile(context.Background(), s, path, testOptions("user-1"))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Parsed != 2 || res.Inserted != 2 {
		t.Errorf("result = %+v, want 2 parsed and inserted", res)
	}
}

func TestImportCSV(t *testing.T) {
	s := newTestStore(t)
	path := writeFile(t, "export.csv",
		"id,broker,sender_name,sender_email,subject,body_preview,date\n"+
			"m1,Axis Capital,Priya Sharma,priya@axiscap.example,Infosys initiation,We initiate coverage.,2026-07-13\n"+
			",Kotak,,,HDFC Bank results,Strong quarter.,\n")

	res, err := ImportFile(context.Background(), s, path, testOptions("user-1"))
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if res.Parsed != 2 || res.Inserted != 2 {
		t.Fatalf("result = %+v, want 2 parsed and inserted", res)
	}

	a, err := s.GetArchive(context.Background(), "user-1", "m1")
	if err != nil {
		t.Fatalf("GetArchive: %v", err)
	}
	if a == nil || a.SenderEmail != "priya@axiscap.example" || a.DateHeader != "2026-07-13" {
		t.Errorf("archive m1 = %+v", a)
	}

	// The row without an id got a generated one.
	generated, err := s.GetArchive(context.Background(), "user-1", "arc_gen1")
	if err != nil {
		t.Fatalf("GetArchive generated: %v", err)
	}
	if generated == nil || generated.Broker != "Kotak" {
		t.Errorf("generated-id archive = %+v", generated)
	}
}

func TestImportIsIdempotentForStableIDs(t *testing.T) {
	s := newTestStore(t)
	path := writeFile(t, "export.json", `[{"id": "m1", "subject": "Note"}]`)

	if _, err := ImportFile(context.Background(), s, path, testOptions("user-1")); err != nil {
		t.Fatalf("first import: %v", err)
	}
	res, err := ImportFile(context.Background(), s, path, testOptions("user-1"))
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 1 {
		t.Errorf("re-import result = %+v, want 0 inserted, 1 skipped", res)
	}
}

func TestImportDryRunWritesNothing(t *testing.T) {
	s := newTestStore(t)
	path := writeFile(t, "export.json", `[{"id": "m1", "subject": "Note"}]`)

	opts := testOptions("user-1")
	opts.DryRun = true
	res, err := ImportFile(context.Background(), s, path, opts)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if !res.DryRun || res.Inserted != 1 {
		t.Errorf("result = %+v, want dry-run with 1 insertable", res)
	}

	archives, err := s.ListArchives(context.Background(), "user-1", store.ArchiveQuery{})
	if err != nil {
		t.Fatalf("ListArchives: %v", err)
	}
	if len(archives) != 0 {
		t.Errorf("dry run stored %d archives", len(archives))
	}
}

func TestImportErrors(t *testing.T) {
	s := newTestStore(t)

	if _, err := ImportFile(context.Background(), s, writeFile(t, "bad.json", "{not json"), testOptions("user-1")); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := ImportFile(context.Background(), s, writeFile(t, "export.xml", "<x/>"), testOptions("user-1")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := ImportFile(context.Background(), s, writeFile(t, "ok.json", "[]"), Options{}); err == nil {
		t.Error("expected error for missing user id")
	}
}
