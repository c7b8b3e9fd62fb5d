// Package store provides the SQLite storage layer for brokerage insights.
//
// All data lives in a single SQLite database file, including:
// - Archived broker-research email records (read-mostly, seeded by import)
// - Extraction runs with their lifecycle state and progress counters
// - Extracted reports with their dedup lineage
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.insights/insights.db"

// MaxFailureSamples caps the per-run failure diagnostics list.
const MaxFailureSamples = 25

// Run statuses. Completed, failed and aborted are terminal.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusAborted   = "aborted"
)

// Dedup methods recorded on duplicate reports.
const (
	DedupeMethodExactKey        = "exact_key"
	DedupeMethodSemanticOverlap = "semantic_overlap"
)

// IsTerminalStatus reports whether status is one of the terminal run states.
func IsTerminalStatus(status string) bool {
	return status == RunStatusCompleted || status == RunStatusFailed || status == RunStatusAborted
}

// IsValidStatus reports whether status is a known run status.
func IsValidStatus(status string) bool {
	switch status {
	case RunStatusQueued, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// Archive is one previously-ingested email record available for extraction.
type Archive struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Broker      string    `json:"broker"`
	SenderName  string    `json:"senderName"`
	SenderEmail string    `json:"senderEmail"`
	Subject     string    `json:"subject"`
	Snippet     string    `json:"snippet"`
	BodyPreview string    `json:"bodyPreview"`
	DateHeader  string    `json:"dateHeader"`
	IngestedAt  time.Time `json:"ingestedAt"`
}

// FailureSample captures one per-archive extraction failure for diagnostics.
type FailureSample struct {
	ArchiveID string `json:"archiveId"`
	Error     string `json:"error"`
}

// ExtractionRun is one attempt to process a bounded set of archives for one
// user. Mutated only by the orchestrator worker processing it or by an
// abort request.
type ExtractionRun struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Status string `json:"status"`

	// Scope
	ArchiveIDs              []string `json:"archiveIds"`
	BrokerFilter            string   `json:"brokerFilter,omitempty"`
	IncludeAlreadyExtracted bool     `json:"includeAlreadyExtracted"`
	RequestedLimit          int      `json:"requestedLimit"`
	Trigger                 string   `json:"trigger,omitempty"`

	// Progress counters
	CandidateArchives int `json:"candidateArchives"`
	ProcessedArchives int `json:"processedArchives"`
	ExtractedReports  int `json:"extractedReports"`
	SkippedArchives   int `json:"skippedArchives"`
	FailedArchives    int `json:"failedArchives"`
	DuplicateReports  int `json:"duplicateReports"`

	FailureSamples []FailureSample `json:"failureSamples,omitempty"`
	Error          string          `json:"error,omitempty"`

	// Abort bookkeeping. An abort is a request, not an immediate
	// transition, unless the run is still queued.
	AbortRequestedAt *time.Time `json:"abortRequestedAt,omitempty"`
	AbortReason      string     `json:"abortReason,omitempty"`
	AbortCompletedAt *time.Time `json:"abortCompletedAt,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ExtractedReport is one canonical or duplicate research item derived from
// exactly one archived message.
type ExtractedReport struct {
	ID        string `json:"id"`
	RunID     string `json:"runId"`
	ArchiveID string `json:"archiveId"`
	UserID    string `json:"userId"`

	Broker      string    `json:"broker"`
	Company     string    `json:"company"`
	CompanyRaw  string    `json:"companyRaw"`
	ReportType  string    `json:"reportType"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	KeyPoints   []string  `json:"keyPoints,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Confidence  float64   `json:"confidence"`

	// Dedup lineage. A duplicate always points at a canonical report
	// (one with an empty DuplicateOf): no chains.
	DuplicateKey string `json:"duplicateKey"`
	DuplicateOf  string `json:"duplicateOfReportId,omitempty"`
	DedupeMethod string `json:"dedupeMethod,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsCanonical reports whether r is the representative of its dedup group.
func (r *ExtractedReport) IsCanonical() bool {
	return r.DuplicateOf == ""
}

// ArchiveQuery filters ListArchives.
type ArchiveQuery struct {
	IDs    []string // allow-list; natural id ordering preserved
	Broker string
	Limit  int // 0 = no limit
}

// RunQuery filters ListRuns. Results are newest-created-first.
type RunQuery struct {
	Status string
	Limit  int
	Offset int
}

// ReportQuery filters ListReports. Results are newest-published-first.
// String filters are case-insensitive substring matches; date bounds are
// inclusive.
type ReportQuery struct {
	Broker            string
	ReportType        string
	RunID             string
	Company           string
	Query             string // matches title or summary
	PublishedFrom     *time.Time
	PublishedTo       *time.Time
	IncludeDuplicates bool
	Limit             int
	Offset            int
}

// ArchiveStore is the read-mostly view of ingested email records.
type ArchiveStore interface {
	AddArchive(ctx context.Context, a *Archive) error
	AddArchiveBatch(ctx context.Context, archives []*Archive) (int, error)
	GetArchive(ctx context.Context, userID, id string) (*Archive, error)
	ListArchives(ctx context.Context, userID string, q ArchiveQuery) ([]*Archive, error)
}

// RunStore persists extraction run records.
type RunStore interface {
	CreateRun(ctx context.Context, run *ExtractionRun) error
	GetRun(ctx context.Context, userID, runID string) (*ExtractionRun, error)
	UpdateRunProgress(ctx context.Context, run *ExtractionRun) error
	RequestRunAbort(ctx context.Context, userID, runID, reason string, at time.Time) error
	ListRuns(ctx context.Context, userID string, q RunQuery) ([]*ExtractionRun, int, error)
}

// ReportStore persists extracted reports and serves the dedup queries.
type ReportStore interface {
	AddReport(ctx context.Context, r *ExtractedReport) error
	UpdateReport(ctx context.Context, r *ExtractedReport) error
	GetReport(ctx context.Context, userID, reportID string) (*ExtractedReport, error)
	FindCanonicalByKey(ctx context.Context, userID, duplicateKey string) (*ExtractedReport, error)
	HasReportForArchive(ctx context.Context, userID, archiveID string) (bool, error)
	ListCanonicalCandidates(ctx context.Context, userID, broker, company string) ([]*ExtractedReport, error)
	ListReports(ctx context.Context, userID string, q ReportQuery) ([]*ExtractedReport, int, error)
}

// Stats holds observability counts about the store.
type Stats struct {
	ArchiveCount   int64 `json:"archiveCount"`
	RunCount       int64 `json:"runCount"`
	ReportCount    int64 `json:"reportCount"`
	DuplicateCount int64 `json:"duplicateCount"`
	DBSizeBytes    int64 `json:"dbSizeBytes"`
}

// Store is the combined persistence interface the orchestrator consumes.
type Store interface {
	ArchiveStore
	RunStore
	ReportStore

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Enable WAL mode and foreign keys
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// GetDB exposes the underlying handle for maintenance tooling.
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
