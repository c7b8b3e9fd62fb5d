package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run id does not exist for the user.
var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *ExtractionRun) error {
	if run.ID == "" || run.UserID == "" {
		return fmt.Errorf("run requires id and user id")
	}
	archiveIDs, err := json.Marshal(run.ArchiveIDs)
	if err != nil {
		return fmt.Errorf("encoding archive ids: %w", err)
	}
	samples, err := json.Marshal(run.FailureSamples)
	if err != nil {
		return fmt.Errorf("encoding failure samples: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, user_id, status, archive_ids, broker_filter, include_extracted,
			requested_limit, trigger_source, candidate_archives, processed_archives,
			extracted_reports, skipped_archives, failed_archives, duplicate_reports,
			failure_samples, error, abort_requested_at, abort_reason, abort_completed_at,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.Status, string(archiveIDs), run.BrokerFilter, boolToInt(run.IncludeAlreadyExtracted),
		run.RequestedLimit, run.Trigger, run.CandidateArchives, run.ProcessedArchives,
		run.ExtractedReports, run.SkippedArchives, run.FailedArchives, run.DuplicateReports,
		string(samples), run.Error, timePtrToDB(run.AbortRequestedAt), run.AbortReason, timePtrToDB(run.AbortCompletedAt),
		timeToDB(run.CreatedAt), timePtrToDB(run.StartedAt), timePtrToDB(run.CompletedAt), timeToDB(run.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns a single run, or ErrRunNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, userID, runID string) (*ExtractionRun, error) {
	row := s.db.QueryRowContext(ctx, runSelect+` WHERE user_id = ? AND id = ?`, userID, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// UpdateRunProgress persists the worker-owned fields of a run: status,
// counters, failure samples, error, and lifecycle timestamps. It leaves
// the abort-request columns untouched so a concurrent AbortRun cannot be
// clobbered by the processing loop (abort completion is written here).
func (s *SQLiteStore) UpdateRunProgress(ctx context.Context, run *ExtractionRun) error {
	samples, err := json.Marshal(run.FailureSamples)
	if err != nil {
		return fmt.Errorf("encoding failure samples: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, processed_archives = ?, extracted_reports = ?,
			skipped_archives = ?, failed_archives = ?, duplicate_reports = ?,
			failure_samples = ?, error = ?, abort_reason = ?, abort_completed_at = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		run.Status, run.ProcessedArchives, run.ExtractedReports,
		run.SkippedArchives, run.FailedArchives, run.DuplicateReports,
		string(samples), run.Error, run.AbortReason, timePtrToDB(run.AbortCompletedAt),
		timePtrToDB(run.StartedAt), timePtrToDB(run.CompletedAt), timeToDB(run.UpdatedAt),
		run.UserID, run.ID)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RequestRunAbort records an abort request on a run without touching any
// worker-owned column.
func (s *SQLiteStore) RequestRunAbort(ctx context.Context, userID, runID, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET abort_requested_at = ?, abort_reason = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		timeToDB(at), reason, timeToDB(at), userID, runID)
	if err != nil {
		return fmt.Errorf("requesting abort for run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns runs for a user, newest-created-first, with the total
// count of rows matching the filter (before pagination).
func (s *SQLiteStore) ListRuns(ctx context.Context, userID string, q RunQuery) ([]*ExtractionRun, int, error) {
	where := ` WHERE user_id = ?`
	args := []any{userID}
	if q.Status != "" {
		where += ` AND status = ?`
		args = append(args, q.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting runs: %w", err)
	}

	query := runSelect + where + ` ORDER BY created_at DESC, id DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	if q.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []*ExtractionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating runs: %w", err)
	}
	return out, total, nil
}

const runSelect = `
	SELECT id, user_id, status, archive_ids, broker_filter, include_extracted,
		requested_limit, trigger_source, candidate_archives, processed_archives,
		extracted_reports, skipped_archives, failed_archives, duplicate_reports,
		failure_samples, error, abort_requested_at, abort_reason, abort_completed_at,
		created_at, started_at, completed_at, updated_at
	FROM runs`

func scanRun(row rowScanner) (*ExtractionRun, error) {
	var (
		run        ExtractionRun
		archiveIDs string
		samples    string
		include    int
		abortReq   sql.NullString
		abortDone  sql.NullString
		createdAt  string
		startedAt  sql.NullString
		doneAt     sql.NullString
		updatedAt  string
	)
	err := row.Scan(&run.ID, &run.UserID, &run.Status, &archiveIDs, &run.BrokerFilter, &include,
		&run.RequestedLimit, &run.Trigger, &run.CandidateArchives, &run.ProcessedArchives,
		&run.ExtractedReports, &run.SkippedArchives, &run.FailedArchives, &run.DuplicateReports,
		&samples, &run.Error, &abortReq, &run.AbortReason, &abortDone,
		&createdAt, &startedAt, &doneAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run row: %w", err)
	}

	if err := json.Unmarshal([]byte(archiveIDs), &run.ArchiveIDs); err != nil {
		return nil, fmt.Errorf("decoding archive ids for run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(samples), &run.FailureSamples); err != nil {
		return nil, fmt.Errorf("decoding failure samples for run %s: %w", run.ID, err)
	}
	run.IncludeAlreadyExtracted = include != 0
	run.AbortRequestedAt = timePtrFromDB(abortReq)
	run.AbortCompletedAt = timePtrFromDB(abortDone)
	run.CreatedAt = timeFromDB(createdAt)
	run.StartedAt = timePtrFromDB(startedAt)
	run.CompletedAt = timePtrFromDB(doneAt)
	run.UpdatedAt = timeFromDB(updatedAt)
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
