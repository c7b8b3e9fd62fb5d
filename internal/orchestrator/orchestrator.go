// Package orchestrator owns the extraction run lifecycle: triggering and
// queueing runs, per-user serialized processing, cooperative abort, and
// the query API over runs and reports.
//
// Runs for the same user are processed strictly one at a time in
// submission order; runs for different users proceed concurrently. The
// processing loop persists run state after every archive, so a crash
// mid-run leaves an inspectable partial result instead of an
// all-or-nothing transaction.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/dedup"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/extract"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/redact"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// ErrClosed is returned by TriggerRun after Close.
var ErrClosed = errors.New("orchestrator closed")

// ValidationError marks malformed caller input. It is the only error
// class surfaced synchronously; once a run is accepted its outcome is
// observed by polling, never by exceptions.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is caller fault.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Options configures an Orchestrator.
type Options struct {
	Store   store.Store
	Adapter extract.Adapter // defaults to the heuristic adapter
	Dedup   dedup.Config    // zero value replaced by defaults

	MaxRunArchives int // cap on archives per run (default 1000)
	MaxPageSize    int // cap on list page sizes (default 100)

	// Injectable for deterministic tests.
	Now   func() time.Time
	NewID func(prefix string) string
}

// Orchestrator implements the run lifecycle and query API.
type Orchestrator struct {
	store   store.Store
	adapter extract.Adapter
	dedup   dedup.Config

	maxRunArchives int
	maxPageSize    int

	now   func() time.Time
	newID func(prefix string) string

	mu     sync.Mutex
	queues map[string][]string // userID -> pending run ids
	active map[string]bool     // userID -> worker goroutine live
	closed bool

	group *errgroup.Group
}

// New creates an Orchestrator. The per-user queues are owned by this
// instance; tests construct and tear down orchestrators freely.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a store")
	}
	if opts.Adapter == nil {
		opts.Adapter = extract.NewHeuristicAdapter()
	}
	if opts.Dedup == (dedup.Config{}) {
		opts.Dedup = dedup.DefaultConfig()
	}
	if opts.MaxRunArchives <= 0 {
		opts.MaxRunArchives = 1000
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func(prefix string) string { return prefix + "_" + uuid.NewString() }
	}

	return &Orchestrator{
		store:          opts.Store,
		adapter:        opts.Adapter,
		dedup:          opts.Dedup,
		maxRunArchives: opts.MaxRunArchives,
		maxPageSize:    opts.MaxPageSize,
		now:            opts.Now,
		newID:          opts.NewID,
		queues:         make(map[string][]string),
		active:         make(map[string]bool),
		group:          &errgroup.Group{},
	}, nil
}

// Close stops accepting new runs and waits for in-flight workers to drain
// their queues.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return o.group.Wait()
}

// TriggerOptions scopes a run request.
type TriggerOptions struct {
	// ArchiveIDs restricts the run to an allow-list. nil means "all
	// archives for the user"; an empty non-nil slice is a valid
	// zero-candidate run.
	ArchiveIDs              []string
	Broker                  string
	Limit                   int
	IncludeAlreadyExtracted bool
	Trigger                 string
}

// TriggerRun creates and enqueues a run, returning its snapshot
// immediately in queued status. Archive selection happens synchronously
// so the snapshot carries the candidate count.
func (o *Orchestrator) TriggerRun(ctx context.Context, userID string, opts TriggerOptions) (*store.ExtractionRun, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationErrorf("user id is required")
	}
	if opts.Limit < 0 {
		return nil, validationErrorf("limit must not be negative")
	}
	if opts.Limit > o.maxRunArchives {
		return nil, validationErrorf("limit %d exceeds maximum %d", opts.Limit, o.maxRunArchives)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = o.maxRunArchives
	}

	var (
		archives []*store.Archive
		err      error
	)
	if opts.ArchiveIDs != nil {
		archives, err = o.store.ListArchives(ctx, userID, store.ArchiveQuery{IDs: opts.ArchiveIDs, Limit: limit})
	} else {
		archives, err = o.store.ListArchives(ctx, userID, store.ArchiveQuery{Broker: opts.Broker, Limit: limit})
	}
	if err != nil {
		return nil, fmt.Errorf("selecting archives: %w", err)
	}

	ids := make([]string, len(archives))
	for i, a := range archives {
		ids[i] = a.ID
	}

	now := o.now()
	run := &store.ExtractionRun{
		ID:                      o.newID("run"),
		UserID:                  userID,
		Status:                  store.RunStatusQueued,
		ArchiveIDs:              ids,
		BrokerFilter:            opts.Broker,
		IncludeAlreadyExtracted: opts.IncludeAlreadyExtracted,
		RequestedLimit:          opts.Limit,
		Trigger:                 opts.Trigger,
		CandidateArchives:       len(ids),
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("creating run: %w", err)
	}
	o.enqueueLocked(userID, run.ID)
	o.mu.Unlock()

	snapshot := *run
	return &snapshot, nil
}

// enqueueLocked appends a run to the user's chain and starts a worker for
// that user if none is live. Callers hold o.mu.
func (o *Orchestrator) enqueueLocked(userID, runID string) {
	o.queues[userID] = append(o.queues[userID], runID)
	if o.active[userID] {
		return
	}
	o.active[userID] = true
	o.group.Go(func() error {
		o.runUserChain(userID)
		return nil
	})
}

// runUserChain drains one user's queue, processing runs strictly in
// submission order. It exits when the queue is empty; the next trigger
// starts a fresh worker.
func (o *Orchestrator) runUserChain(userID string) {
	for {
		o.mu.Lock()
		queue := o.queues[userID]
		if len(queue) == 0 {
			o.active[userID] = false
			o.mu.Unlock()
			return
		}
		runID := queue[0]
		o.queues[userID] = queue[1:]
		o.mu.Unlock()

		o.processRun(context.Background(), userID, runID)
	}
}

// AbortResult describes the outcome of an abort request.
type AbortResult struct {
	Accepted        bool                 `json:"accepted"`
	Immediate       bool                 `json:"immediate"`
	AlreadyTerminal bool                 `json:"alreadyTerminal"`
	Run             *store.ExtractionRun `json:"run"`
}

// AbortRun requests cancellation of a run. Idempotent: aborting a
// terminal run reports alreadyTerminal with no state change. A queued run
// aborts immediately and synchronously; a running run only records the
// request, which the worker observes before processing each archive.
func (o *Orchestrator) AbortRun(ctx context.Context, userID, runID, reason string) (*AbortResult, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(runID) == "" {
		return nil, validationErrorf("user id and run id are required")
	}

	// Serialized with trigger/worker queue handoff so a queued run
	// cannot start processing while we abort it.
	o.mu.Lock()
	defer o.mu.Unlock()

	run, err := o.store.GetRun(ctx, userID, runID)
	if err != nil {
		return nil, err
	}

	if store.IsTerminalStatus(run.Status) {
		return &AbortResult{AlreadyTerminal: true, Run: run}, nil
	}

	now := o.now()
	if run.Status == store.RunStatusQueued {
		// No worker will ever touch it: finalize synchronously.
		o.removeFromQueueLocked(userID, runID)
		run.Status = store.RunStatusAborted
		run.AbortRequestedAt = &now
		run.AbortReason = reason
		run.AbortCompletedAt = &now
		run.CompletedAt = &now
		run.UpdatedAt = now
		if err := o.store.RequestRunAbort(ctx, userID, runID, reason, now); err != nil {
			return nil, err
		}
		if err := o.store.UpdateRunProgress(ctx, run); err != nil {
			return nil, err
		}
		return &AbortResult{Accepted: true, Immediate: true, Run: run}, nil
	}

	if run.AbortRequestedAt != nil {
		// Already requested; nothing new to accept.
		return &AbortResult{Accepted: false, Run: run}, nil
	}

	if err := o.store.RequestRunAbort(ctx, userID, runID, reason, now); err != nil {
		return nil, err
	}
	run.AbortRequestedAt = &now
	run.AbortReason = reason
	run.UpdatedAt = now
	return &AbortResult{Accepted: true, Immediate: false, Run: run}, nil
}

// removeFromQueueLocked drops a run id from the user's pending queue.
// Callers hold o.mu.
func (o *Orchestrator) removeFromQueueLocked(userID, runID string) {
	queue := o.queues[userID]
	for i, id := range queue {
		if id == runID {
			o.queues[userID] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}

// GetRunStatus returns one run snapshot.
func (o *Orchestrator) GetRunStatus(ctx context.Context, userID, runID string) (*store.ExtractionRun, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(runID) == "" {
		return nil, validationErrorf("user id and run id are required")
	}
	return o.store.GetRun(ctx, userID, runID)
}

// ListRunsOptions paginates and filters ListRuns.
type ListRunsOptions struct {
	Status string
	Limit  int
	Offset int
}

// RunPage is one page of runs.
type RunPage struct {
	Runs  []*store.ExtractionRun `json:"runs"`
	Total int                    `json:"total"`
}

// ListRuns returns runs newest-created-first.
func (o *Orchestrator) ListRuns(ctx context.Context, userID string, opts ListRunsOptions) (*RunPage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationErrorf("user id is required")
	}
	if opts.Status != "" && !store.IsValidStatus(opts.Status) {
		return nil, validationErrorf("unknown run status %q", opts.Status)
	}
	limit, offset, err := o.pageBounds(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}

	runs, total, err := o.store.ListRuns(ctx, userID, store.RunQuery{Status: opts.Status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*store.ExtractionRun{}
	}
	return &RunPage{Runs: runs, Total: total}, nil
}

// ListReportsOptions paginates and filters ListReports.
type ListReportsOptions struct {
	Broker            string
	ReportType        string
	RunID             string
	Company           string
	Query             string
	PublishedFrom     string // inclusive ISO 8601 bound
	PublishedTo       string
	IncludeDuplicates bool
	Limit             int
	Offset            int
}

// ReportPage is one page of reports.
type ReportPage struct {
	Reports []*store.ExtractedReport `json:"reports"`
	Total   int                      `json:"total"`
}

// ListReports returns reports newest-published-first. Free-text filters
// are case-insensitive substring matches; date bounds are inclusive and
// validated before any query runs. Report text is redacted again on the
// way out as a defense in depth.
func (o *Orchestrator) ListReports(ctx context.Context, userID string, opts ListReportsOptions) (*ReportPage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationErrorf("user id is required")
	}
	limit, offset, err := o.pageBounds(opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}

	from, err := parseDateBound(opts.PublishedFrom, false)
	if err != nil {
		return nil, err
	}
	to, err := parseDateBound(opts.PublishedTo, true)
	if err != nil {
		return nil, err
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, validationErrorf("publishedFrom is after publishedTo")
	}

	reports, total, err := o.store.ListReports(ctx, userID, store.ReportQuery{
		Broker:            opts.Broker,
		ReportType:        opts.ReportType,
		RunID:             opts.RunID,
		Company:           opts.Company,
		Query:             opts.Query,
		PublishedFrom:     from,
		PublishedTo:       to,
		IncludeDuplicates: opts.IncludeDuplicates,
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*store.ExtractedReport, len(reports))
	for i, r := range reports {
		out[i] = sanitizeReport(r)
	}
	return &ReportPage{Reports: out, Total: total}, nil
}

func (o *Orchestrator) pageBounds(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, validationErrorf("limit and offset must not be negative")
	}
	if limit > o.maxPageSize {
		return 0, 0, validationErrorf("limit %d exceeds maximum %d", limit, o.maxPageSize)
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	return limit, offset, nil
}

const defaultPageSize = 20

// parseDateBound parses an inclusive ISO 8601 bound. Plain dates expand
// to the start (from) or end (to) of that UTC day.
func parseDateBound(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		u := t.UTC()
		return &u, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		u := t.UTC()
		if endOfDay {
			u = u.Add(24*time.Hour - time.Second)
		}
		return &u, nil
	}
	return nil, validationErrorf("invalid date bound %q", s)
}

// sanitizeReport redacts report text for external consumption. Write-time
// redaction already ran with full sender context; this pass is pattern
// based only.
func sanitizeReport(r *store.ExtractedReport) *store.ExtractedReport {
	clean := *r
	clean.Title = redact.Redact(clean.Title, redact.Context{})
	clean.Summary = redact.Redact(clean.Summary, redact.Context{})
	if len(clean.KeyPoints) > 0 {
		pts := make([]string, 0, len(clean.KeyPoints))
		for _, kp := range clean.KeyPoints {
			if cleaned := redact.Redact(kp, redact.Context{}); cleaned != "" {
				pts = append(pts, cleaned)
			}
		}
		clean.KeyPoints = pts
	}
	return &clean
}
