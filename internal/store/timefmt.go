package store

import (
	"database/sql"
	"time"
)

// Timestamps are stored as RFC 3339 UTC strings at second resolution so
// that SQLite string ordering matches chronological ordering.
const dbTimeLayout = time.RFC3339

func timeToDB(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func timePtrToDB(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeToDB(*t), Valid: true}
}

func timeFromDB(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(dbTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func timePtrFromDB(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := timeFromDB(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// optionalTimeToDB maps the zero time to NULL, for columns like
// reports.published_at where absence is meaningful.
func optionalTimeToDB(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: timeToDB(t), Valid: true}
}
