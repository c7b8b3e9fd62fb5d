package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newQueuedRun(id, userID string, created time.Time) *ExtractionRun {
	return &ExtractionRun{
		ID:         id,
		UserID:     userID,
		Status:     RunStatusQueued,
		ArchiveIDs: []string{"arc-1", "arc-2"},
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func TestRunRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newQueuedRun("run-1", "user-1", testTime(1, 9))
	run.BrokerFilter = "Axis Capital"
	run.IncludeAlreadyExtracted = true
	run.RequestedLimit = 100
	run.Trigger = "manual"
	run.CandidateArchives = 2

	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, "user-1", "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunStatusQueued || got.BrokerFilter != "Axis Capital" || !got.IncludeAlreadyExtracted {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.ArchiveIDs) != 2 || got.ArchiveIDs[0] != "arc-1" {
		t.Errorf("archive ids mismatch: %v", got.ArchiveIDs)
	}
	if got.StartedAt != nil || got.CompletedAt != nil || got.AbortRequestedAt != nil {
		t.Errorf("fresh run has unexpected timestamps: %+v", got)
	}

	if _, err := s.GetRun(ctx, "user-1", "run-404"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("missing run error = %v, want ErrRunNotFound", err)
	}
	if _, err := s.GetRun(ctx, "user-2", "run-1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("cross-user run error = %v, want ErrRunNotFound", err)
	}
}

func TestUpdateRunProgressPreservesAbortRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newQueuedRun("run-1", "user-1", testTime(1, 9))
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// Simulate an abort request landing between worker writes.
	abortAt := testTime(1, 10)
	if err := s.RequestRunAbort(ctx, "user-1", "run-1", "user cancelled", abortAt); err != nil {
		t.Fatalf("RequestRunAbort: %v", err)
	}

	// Worker writes progress without having observed the abort.
	started := testTime(1, 9)
	run.Status = RunStatusRunning
	run.StartedAt = &started
	run.ProcessedArchives = 1
	run.UpdatedAt = testTime(1, 11)
	if err := s.UpdateRunProgress(ctx, run); err != nil {
		t.Fatalf("UpdateRunProgress: %v", err)
	}

	got, err := s.GetRun(ctx, "user-1", "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.AbortRequestedAt == nil || !got.AbortRequestedAt.Equal(abortAt) {
		t.Errorf("abort request clobbered by progress write: %+v", got)
	}
	if got.ProcessedArchives != 1 || got.Status != RunStatusRunning {
		t.Errorf("progress not persisted: %+v", got)
	}
}

func TestRequestRunAbortUnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.RequestRunAbort(context.Background(), "user-1", "run-404", "", testTime(1, 0))
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("error = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsOrderingAndPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := newQueuedRun(id, "user-1", testTime(1, 9+i))
		if err := s.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun %s: %v", id, err)
		}
	}
	// A run for another user must not leak in.
	if err := s.CreateRun(ctx, newQueuedRun("run-x", "user-2", testTime(1, 12))); err != nil {
		t.Fatalf("CreateRun other user: %v", err)
	}

	runs, total, err := s.ListRuns(ctx, "user-1", RunQuery{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(runs) != 2 || runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("ordering wrong: got %s, %s", runs[0].ID, runs[1].ID)
	}

	page2, total, err := s.ListRuns(ctx, "user-1", RunQuery{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListRuns page 2: %v", err)
	}
	if total != 3 || len(page2) != 1 || page2[0].ID != "run-a" {
		t.Errorf("page 2 wrong: total=%d runs=%v", total, page2)
	}
}

func TestListRunsStatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queued := newQueuedRun("run-q", "user-1", testTime(1, 9))
	if err := s.CreateRun(ctx, queued); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	done := newQueuedRun("run-d", "user-1", testTime(1, 10))
	if err := s.CreateRun(ctx, done); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	completedAt := testTime(1, 11)
	done.Status = RunStatusCompleted
	done.CompletedAt = &completedAt
	done.UpdatedAt = completedAt
	if err := s.UpdateRunProgress(ctx, done); err != nil {
		t.Fatalf("UpdateRunProgress: %v", err)
	}

	completed, total, err := s.ListRuns(ctx, "user-1", RunQuery{Status: RunStatusCompleted})
	if err != nil {
		t.Fatalf("ListRuns status: %v", err)
	}
	if total != 1 || len(completed) != 1 || completed[0].ID != "run-d" {
		t.Errorf("status filter wrong: total=%d runs=%v", total, completed)
	}
}

func TestRunFailureSamplesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := newQueuedRun("run-1", "user-1", testTime(1, 9))
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run.Status = RunStatusFailed
	run.Error = "store unavailable"
	run.FailureSamples = []FailureSample{
		{ArchiveID: "arc-1", Error: "adapter timeout"},
		{ArchiveID: "arc-2", Error: "empty output"},
	}
	run.UpdatedAt = testTime(1, 10)
	if err := s.UpdateRunProgress(ctx, run); err != nil {
		t.Fatalf("UpdateRunProgress: %v", err)
	}

	got, err := s.GetRun(ctx, "user-1", "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if len(got.FailureSamples) != 2 || got.FailureSamples[0].ArchiveID != "arc-1" {
		t.Errorf("failure samples mismatch: %+v", got.FailureSamples)
	}
	if got.Error != "store unavailable" {
		t.Errorf("error mismatch: %q", got.Error)
	}
}
