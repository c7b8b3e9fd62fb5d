package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrReportNotFound is returned when a report id does not exist for the user.
var ErrReportNotFound = errors.New("report not found")

// AddReport inserts a new report record.
func (s *SQLiteStore) AddReport(ctx context.Context, r *ExtractedReport) error {
	if r.ID == "" || r.UserID == "" {
		return fmt.Errorf("report requires id and user id")
	}
	keyPoints, err := json.Marshal(r.KeyPoints)
	if err != nil {
		return fmt.Errorf("encoding key points: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (
			id, run_id, archive_id, user_id, broker, company, company_raw,
			report_type, title, summary, key_points, published_at, confidence,
			duplicate_key, duplicate_of, dedupe_method, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.ArchiveID, r.UserID, r.Broker, r.Company, r.CompanyRaw,
		r.ReportType, r.Title, r.Summary, string(keyPoints), optionalTimeToDB(r.PublishedAt), r.Confidence,
		r.DuplicateKey, r.DuplicateOf, r.DedupeMethod, timeToDB(r.CreatedAt), timeToDB(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting report %s: %w", r.ID, err)
	}
	return nil
}

// UpdateReport overwrites the mutable fields of an existing report. Used by
// the refresh path when a canonical report is re-extracted.
func (s *SQLiteStore) UpdateReport(ctx context.Context, r *ExtractedReport) error {
	keyPoints, err := json.Marshal(r.KeyPoints)
	if err != nil {
		return fmt.Errorf("encoding key points: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET
			run_id = ?, broker = ?, company = ?, company_raw = ?, report_type = ?,
			title = ?, summary = ?, key_points = ?, published_at = ?, confidence = ?,
			duplicate_key = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		r.RunID, r.Broker, r.Company, r.CompanyRaw, r.ReportType,
		r.Title, r.Summary, string(keyPoints), optionalTimeToDB(r.PublishedAt), r.Confidence,
		r.DuplicateKey, timeToDB(r.UpdatedAt),
		r.UserID, r.ID)
	if err != nil {
		return fmt.Errorf("updating report %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrReportNotFound
	}
	return nil
}

// GetReport returns a single report, or ErrReportNotFound.
func (s *SQLiteStore) GetReport(ctx context.Context, userID, reportID string) (*ExtractedReport, error) {
	row := s.db.QueryRowContext(ctx, reportSelect+` WHERE user_id = ? AND id = ?`, userID, reportID)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	return r, err
}

// FindCanonicalByKey returns the canonical report carrying the given exact
// duplicate key, or nil. Duplicates never participate: resolution against
// canonical candidates only is what keeps dedup lineage chain-free.
func (s *SQLiteStore) FindCanonicalByKey(ctx context.Context, userID, duplicateKey string) (*ExtractedReport, error) {
	row := s.db.QueryRowContext(ctx, reportSelect+`
		WHERE user_id = ? AND duplicate_key = ? AND duplicate_of = ''
		ORDER BY created_at ASC, id ASC LIMIT 1`, userID, duplicateKey)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// HasReportForArchive reports whether any report, canonical or duplicate,
// was already derived from this (user, archive) pair.
func (s *SQLiteStore) HasReportForArchive(ctx context.Context, userID, archiveID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM reports WHERE user_id = ? AND archive_id = ? LIMIT 1`,
		userID, archiveID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking reports for archive %s: %w", archiveID, err)
	}
	return true, nil
}

// ListCanonicalCandidates returns the canonical reports for a user with
// the same broker and canonical company, in stable insertion order. This
// feeds semantic duplicate search, where first-match-wins makes the
// ordering observable.
func (s *SQLiteStore) ListCanonicalCandidates(ctx context.Context, userID, broker, company string) ([]*ExtractedReport, error) {
	rows, err := s.db.QueryContext(ctx, reportSelect+`
		WHERE user_id = ? AND duplicate_of = ''
		AND LOWER(broker) = LOWER(?) AND LOWER(company) = LOWER(?)
		ORDER BY created_at ASC, id ASC`, userID, broker, company)
	if err != nil {
		return nil, fmt.Errorf("querying canonical candidates: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// ListReports returns reports for a user, newest-published-first, with the
// total count matching the filter before pagination. Duplicates are
// excluded unless q.IncludeDuplicates.
func (s *SQLiteStore) ListReports(ctx context.Context, userID string, q ReportQuery) ([]*ExtractedReport, int, error) {
	where := ` WHERE user_id = ?`
	args := []any{userID}

	if !q.IncludeDuplicates {
		where += ` AND duplicate_of = ''`
	}
	if q.Broker != "" {
		where += ` AND INSTR(LOWER(broker), LOWER(?)) > 0`
		args = append(args, q.Broker)
	}
	if q.ReportType != "" {
		where += ` AND report_type = ?`
		args = append(args, q.ReportType)
	}
	if q.RunID != "" {
		where += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.Company != "" {
		where += ` AND (INSTR(LOWER(company), LOWER(?)) > 0 OR INSTR(LOWER(company_raw), LOWER(?)) > 0)`
		args = append(args, q.Company, q.Company)
	}
	if q.Query != "" {
		where += ` AND (INSTR(LOWER(title), LOWER(?)) > 0 OR INSTR(LOWER(summary), LOWER(?)) > 0)`
		args = append(args, q.Query, q.Query)
	}
	if q.PublishedFrom != nil {
		where += ` AND published_at IS NOT NULL AND published_at >= ?`
		args = append(args, timeToDB(*q.PublishedFrom))
	}
	if q.PublishedTo != nil {
		where += ` AND published_at IS NOT NULL AND published_at <= ?`
		args = append(args, timeToDB(*q.PublishedTo))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting reports: %w", err)
	}

	query := reportSelect + where + ` ORDER BY published_at DESC, created_at DESC, id DESC`
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
		return nil, 0, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	out, err := collectReports(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

const reportSelect = `
	SELECT id, run_id, archive_id, user_id, broker, company, company_raw,
		report_type, title, summary, key_points, published_at, confidence,
		duplicate_key, duplicate_of, dedupe_method, created_at, updated_at
	FROM reports`

func collectReports(rows *sql.Rows) ([]*ExtractedReport, error) {
	var out []*ExtractedReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return out, nil
}

func scanReport(row rowScanner) (*ExtractedReport, error) {
	var (
		r         ExtractedReport
		keyPoints string
		published sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(&r.ID, &r.RunID, &r.ArchiveID, &r.UserID, &r.Broker, &r.Company, &r.CompanyRaw,
		&r.ReportType, &r.Title, &r.Summary, &keyPoints, &published, &r.Confidence,
		&r.DuplicateKey, &r.DuplicateOf, &r.DedupeMethod, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning report row: %w", err)
	}
	if err := json.Unmarshal([]byte(keyPoints), &r.KeyPoints); err != nil {
		return nil, fmt.Errorf("decoding key points for report %s: %w", r.ID, err)
	}
	if published.Valid {
		r.PublishedAt = timeFromDB(published.String)
	}
	r.CreatedAt = timeFromDB(createdAt)
	r.UpdatedAt = timeFromDB(updatedAt)
	return &r, nil
}
