package store

import (
	"context"
	"fmt"
	"os"
)

// Stats returns observability counts about the store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		dest  *int64
		query string
	}{
		{&stats.ArchiveCount, `SELECT COUNT(*) FROM archives`},
		{&stats.RunCount, `SELECT COUNT(*) FROM runs`},
		{&stats.ReportCount, `SELECT COUNT(*) FROM reports`},
		{&stats.DuplicateCount, `SELECT COUNT(*) FROM reports WHERE duplicate_of != ''`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("querying stats: %w", err)
		}
	}

	if s.dbPath != ":memory:" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			stats.DBSizeBytes = fi.Size()
		}
	}
	return stats, nil
}
