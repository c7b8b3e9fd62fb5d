package store

import (
	"context"
	"testing"
	"time"
)

func sampleReport(id, userID string, created time.Time) *ExtractedReport {
	return &ExtractedReport{
		ID:           id,
		RunID:        "run-1",
		ArchiveID:    "arc-" + id,
		UserID:       userID,
		Broker:       "Axis Capital",
		Company:      "Reliance Industries",
		CompanyRaw:   "Reliance Industries Ltd",
		ReportType:   "results_update",
		Title:        "Reliance Industries Results Update",
		Summary:      "Revenue grew 12% with margin expansion.",
		KeyPoints:    []string{"Revenue +12%", "Margins +40bps"},
		PublishedAt:  created,
		Confidence:   0.85,
		DuplicateKey: "rpt_2026-07-01_abc" + id,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestReportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReport("1", "user-1", testTime(1, 9))
	if err := s.AddReport(ctx, r); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	got, err := s.GetReport(ctx, "user-1", "1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Title != r.Title || got.Company != r.Company || got.Confidence != r.Confidence {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.KeyPoints) != 2 || got.KeyPoints[0] != "Revenue +12%" {
		t.Errorf("key points mismatch: %v", got.KeyPoints)
	}
	if !got.IsCanonical() {
		t.Error("fresh report should be canonical")
	}
}

func TestFindCanonicalByKeyIgnoresDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	canonical := sampleReport("1", "user-1", testTime(1, 9))
	canonical.DuplicateKey = "rpt_2026-07-01_shared"
	if err := s.AddReport(ctx, canonical); err != nil {
		t.Fatalf("AddReport canonical: %v", err)
	}

	dup := sampleReport("2", "user-1", testTime(1, 10))
	dup.DuplicateKey = "rpt_2026-07-01_shared"
	dup.DuplicateOf = "1"
	dup.DedupeMethod = DedupeMethodExactKey
	if err := s.AddReport(ctx, dup); err != nil {
		t.Fatalf("AddReport duplicate: %v", err)
	}

	got, err := s.FindCanonicalByKey(ctx, "user-1", "rpt_2026-07-01_shared")
	if err != nil {
		t.Fatalf("FindCanonicalByKey: %v", err)
	}
	if got == nil || got.ID != "1" {
		t.Errorf("expected canonical report 1, got %+v", got)
	}

	none, err := s.FindCanonicalByKey(ctx, "user-1", "rpt_other")
	if err != nil {
		t.Fatalf("FindCanonicalByKey miss: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil for unknown key, got %+v", none)
	}
}

func TestHasReportForArchive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReport("1", "user-1", testTime(1, 9))
	r.ArchiveID = "arc-77"
	if err := s.AddReport(ctx, r); err != nil {
		t.Fatalf("AddReport: %v", err)
	}
	dup := sampleReport("2", "user-1", testTime(1, 10))
	dup.ArchiveID = "arc-78"
	dup.DuplicateOf = "1"
	dup.DedupeMethod = DedupeMethodExactKey
	if err := s.AddReport(ctx, dup); err != nil {
		t.Fatalf("AddReport duplicate: %v", err)
	}

	// Duplicate-only archives count as extracted too.
	for _, archiveID := range []string{"arc-77", "arc-78"} {
		has, err := s.HasReportForArchive(ctx, "user-1", archiveID)
		if err != nil {
			t.Fatalf("HasReportForArchive(%s): %v", archiveID, err)
		}
		if !has {
			t.Errorf("HasReportForArchive(%s) = false, want true", archiveID)
		}
	}

	has, err := s.HasReportForArchive(ctx, "user-1", "arc-88")
	if err != nil {
		t.Fatalf("HasReportForArchive miss: %v", err)
	}
	if has {
		t.Error("HasReportForArchive = true for archive with no reports")
	}
}

func TestListCanonicalCandidatesFiltersAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := sampleReport("1", "user-1", testTime(1, 9))
	second := sampleReport("2", "user-1", testTime(1, 10))
	otherCompany := sampleReport("3", "user-1", testTime(1, 11))
	otherCompany.Company = "Tata Motors"
	dup := sampleReport("4", "user-1", testTime(1, 12))
	dup.DuplicateOf = "1"

	for _, r := range []*ExtractedReport{first, second, otherCompany, dup} {
		if err := s.AddReport(ctx, r); err != nil {
			t.Fatalf("AddReport %s: %v", r.ID, err)
		}
	}

	got, err := s.ListCanonicalCandidates(ctx, "user-1", "axis capital", "reliance industries")
	if err != nil {
		t.Fatalf("ListCanonicalCandidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		ids := make([]string, len(got))
		for i, r := range got {
			ids[i] = r.ID
		}
		t.Errorf("candidates = %v, want [1 2] in insertion order", ids)
	}
}

func TestUpdateReportRefreshesMutableFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleReport("1", "user-1", testTime(1, 9))
	if err := s.AddReport(ctx, r); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	r.RunID = "run-2"
	r.Title = "Refreshed title"
	r.Summary = "Refreshed summary."
	r.KeyPoints = []string{"new point"}
	r.Confidence = 0.95
	r.UpdatedAt = testTime(1, 10)
	if err := s.UpdateReport(ctx, r); err != nil {
		t.Fatalf("UpdateReport: %v", err)
	}

	got, err := s.GetReport(ctx, "user-1", "1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.Title != "Refreshed title" || got.RunID != "run-2" || len(got.KeyPoints) != 1 {
		t.Errorf("refresh not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(testTime(1, 9)) {
		t.Errorf("CreatedAt changed on refresh: %v", got.CreatedAt)
	}
}

func TestListReportsFiltersAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r1 := sampleReport("1", "user-1", testTime(1, 9))
	r2 := sampleReport("2", "user-1", testTime(2, 9))
	r2.Company = "Tata Motors"
	r2.CompanyRaw = "Tata Motors Ltd"
	r2.Title = "Tata Motors downgraded"
	r2.ReportType = "rating_change"
	r2.Broker = "Kotak"
	r3 := sampleReport("3", "user-1", testTime(3, 9))
	dup := sampleReport("4", "user-1", testTime(4, 9))
	dup.DuplicateOf = "1"
	dup.DedupeMethod = DedupeMethodSemanticOverlap

	for _, r := range []*ExtractedReport{r1, r2, r3, dup} {
		if err := s.AddReport(ctx, r); err != nil {
			t.Fatalf("AddReport %s: %v", r.ID, err)
		}
	}

	// Default: newest-published-first, duplicates excluded.
	got, total, err := s.ListReports(ctx, "user-1", ReportQuery{})
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if total != 3 || len(got) != 3 {
		t.Fatalf("total=%d len=%d, want 3/3", total, len(got))
	}
	if got[0].ID != "3" || got[2].ID != "1" {
		t.Errorf("ordering wrong: %s..%s", got[0].ID, got[2].ID)
	}

	// Duplicates included on request.
	withDups, total, err := s.ListReports(ctx, "user-1", ReportQuery{IncludeDuplicates: true})
	if err != nil {
		t.Fatalf("ListReports dups: %v", err)
	}
	if total != 4 || len(withDups) != 4 {
		t.Errorf("with duplicates total=%d len=%d, want 4/4", total, len(withDups))
	}

	// Case-insensitive substring company match.
	tata, _, err := s.ListReports(ctx, "user-1", ReportQuery{Company: "tata"})
	if err != nil {
		t.Fatalf("ListReports company: %v", err)
	}
	if len(tata) != 1 || tata[0].ID != "2" {
		t.Errorf("company filter wrong: %v", tata)
	}

	// Free-text query over title/summary.
	down, _, err := s.ListReports(ctx, "user-1", ReportQuery{Query: "DOWNGRADED"})
	if err != nil {
		t.Fatalf("ListReports query: %v", err)
	}
	if len(down) != 1 || down[0].ID != "2" {
		t.Errorf("query filter wrong: %v", down)
	}

	// Report type and broker filters.
	rated, _, err := s.ListReports(ctx, "user-1", ReportQuery{ReportType: "rating_change", Broker: "kotak"})
	if err != nil {
		t.Fatalf("ListReports type: %v", err)
	}
	if len(rated) != 1 || rated[0].ID != "2" {
		t.Errorf("type/broker filter wrong: %v", rated)
	}

	// Inclusive date bounds.
	from := testTime(2, 0)
	to := testTime(3, 9)
	ranged, _, err := s.ListReports(ctx, "user-1", ReportQuery{PublishedFrom: &from, PublishedTo: &to})
	if err != nil {
		t.Fatalf("ListReports range: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("date range returned %d, want 2 (inclusive bounds)", len(ranged))
	}

	// Pagination respects limit/offset; total stays the full match count.
	page, total, err := s.ListReports(ctx, "user-1", ReportQuery{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListReports page: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].ID != "1" {
		t.Errorf("pagination wrong: total=%d page=%v", total, page)
	}
}
