package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// AddArchive inserts one archive record. Inserting an existing (user, id)
// pair is an error; archives are immutable once ingested.
func (s *SQLiteStore) AddArchive(ctx context.Context, a *Archive) error {
	if a.ID == "" || a.UserID == "" {
		return fmt.Errorf("archive requires id and user id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archives (id, user_id, broker, sender_name, sender_email, subject, snippet, body_preview, date_header, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Broker, a.SenderName, a.SenderEmail, a.Subject, a.Snippet, a.BodyPreview, a.DateHeader, timeToDB(a.IngestedAt))
	if err != nil {
		return fmt.Errorf("inserting archive %s: %w", a.ID, err)
	}
	return nil
}

// AddArchiveBatch inserts archives, skipping records whose (user, id) pair
// already exists. Returns the number actually inserted.
func (s *SQLiteStore) AddArchiveBatch(ctx context.Context, archives []*Archive) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO archives (id, user_id, broker, sender_name, sender_email, subject, snippet, body_preview, date_header, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing batch insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, a := range archives {
		if a.ID == "" || a.UserID == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, a.ID, a.UserID, a.Broker, a.SenderName, a.SenderEmail, a.Subject, a.Snippet, a.BodyPreview, a.DateHeader, timeToDB(a.IngestedAt))
		if err != nil {
			return inserted, fmt.Errorf("inserting archive %s: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("committing batch insert: %w", err)
	}
	return inserted, nil
}

// GetArchive returns one archive, or nil when the id cannot be resolved
// for this user.
func (s *SQLiteStore) GetArchive(ctx context.Context, userID, id string) (*Archive, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, broker, sender_name, sender_email, subject, snippet, body_preview, date_header, ingested_at
		FROM archives WHERE user_id = ? AND id = ?`, userID, id)
	a, err := scanArchive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListArchives returns archives for a user. With an id allow-list the
// store's natural id ordering is preserved; otherwise results are ordered
// oldest-ingested-first, optionally filtered by broker and truncated to
// the limit.
func (s *SQLiteStore) ListArchives(ctx context.Context, userID string, q ArchiveQuery) ([]*Archive, error) {
	var (
		query string
		args  []any
	)

	if q.IDs != nil {
		if len(q.IDs) == 0 {
			return []*Archive{}, nil
		}
		placeholders := strings.Repeat("?,", len(q.IDs))
		placeholders = placeholders[:len(placeholders)-1]
		query = `SELECT id, user_id, broker, sender_name, sender_email, subject, snippet, body_preview, date_header, ingested_at
			FROM archives WHERE user_id = ? AND id IN (` + placeholders + `) ORDER BY id ASC`
		args = append(args, userID)
		for _, id := range q.IDs {
			args = append(args, id)
		}
	} else {
		query = `SELECT id, user_id, broker, sender_name, sender_email, subject, snippet, body_preview, date_header, ingested_at
			FROM archives WHERE user_id = ?`
		args = append(args, userID)
		if q.Broker != "" {
			query += ` AND LOWER(broker) = LOWER(?)`
			args = append(args, q.Broker)
		}
		query += ` ORDER BY ingested_at ASC, id ASC`
	}
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying archives: %w", err)
	}
	defer rows.Close()

	var out []*Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating archives: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(row rowScanner) (*Archive, error) {
	var a Archive
	var ingested string
	if err := row.Scan(&a.ID, &a.UserID, &a.Broker, &a.SenderName, &a.SenderEmail, &a.Subject, &a.Snippet, &a.BodyPreview, &a.DateHeader, &ingested); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning archive row: %w", err)
	}
	a.IngestedAt = timeFromDB(ingested)
	return &a, nil
}
