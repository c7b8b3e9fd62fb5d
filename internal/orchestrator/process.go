package orchestrator

import (
	"context"
	"fmt"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/dedup"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/extract"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/redact"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// processRun executes one run to a terminal status. Per-archive failures
// are recorded and the loop moves on; only storage errors fail the whole
// run. Progress is persisted after every archive so a crash leaves a
// usable partial record.
func (o *Orchestrator) processRun(ctx context.Context, userID, runID string) {
	run, err := o.store.GetRun(ctx, userID, runID)
	if err != nil {
		return
	}
	if run.Status != store.RunStatusQueued {
		// Aborted while queued, or already handled.
		return
	}
	if run.AbortRequestedAt != nil {
		o.finalizeAborted(ctx, run)
		return
	}

	now := o.now()
	run.Status = store.RunStatusRunning
	run.StartedAt = &now
	run.UpdatedAt = now
	if err := o.store.UpdateRunProgress(ctx, run); err != nil {
		return
	}

	for _, archiveID := range run.ArchiveIDs {
		// Re-read abort state before each archive; abort requests land
		// on the row, not in memory.
		fresh, err := o.store.GetRun(ctx, userID, runID)
		if err != nil {
			o.finalizeFailed(ctx, run, fmt.Errorf("reloading run state: %w", err))
			return
		}
		if fresh.AbortRequestedAt != nil {
			run.AbortRequestedAt = fresh.AbortRequestedAt
			run.AbortReason = fresh.AbortReason
			o.finalizeAborted(ctx, run)
			return
		}

		run.ProcessedArchives++
		if err := o.processArchive(ctx, run, archiveID); err != nil {
			o.finalizeFailed(ctx, run, err)
			return
		}

		run.UpdatedAt = o.now()
		if err := o.store.UpdateRunProgress(ctx, run); err != nil {
			return
		}
	}

	// An abort that landed after the last per-archive check still wins.
	if fresh, err := o.store.GetRun(ctx, userID, runID); err == nil && fresh.AbortRequestedAt != nil {
		run.AbortRequestedAt = fresh.AbortRequestedAt
		run.AbortReason = fresh.AbortReason
		o.finalizeAborted(ctx, run)
		return
	}

	now = o.now()
	run.Status = store.RunStatusCompleted
	run.CompletedAt = &now
	run.UpdatedAt = now
	o.store.UpdateRunProgress(ctx, run)
}

// processArchive handles one archive within a run, mutating the run's
// counters in place. A returned error is a storage fault that fails the
// run; extraction problems are absorbed into the failure samples.
func (o *Orchestrator) processArchive(ctx context.Context, run *store.ExtractionRun, archiveID string) error {
	archive, err := o.store.GetArchive(ctx, run.UserID, archiveID)
	if err != nil {
		return fmt.Errorf("loading archive %s: %w", archiveID, err)
	}
	if archive == nil {
		// Selected at trigger time but gone now; not a failure.
		run.SkippedArchives++
		return nil
	}

	if !run.IncludeAlreadyExtracted {
		extracted, err := o.store.HasReportForArchive(ctx, run.UserID, archiveID)
		if err != nil {
			return fmt.Errorf("checking prior extraction for archive %s: %w", archiveID, err)
		}
		if extracted {
			run.SkippedArchives++
			return nil
		}
	}

	raw, err := o.adapter.Extract(ctx, archive, run.UserID, run.ID)
	if err == nil && raw == nil {
		err = fmt.Errorf("adapter returned no report")
	}
	if err != nil {
		run.FailedArchives++
		if len(run.FailureSamples) < store.MaxFailureSamples {
			run.FailureSamples = append(run.FailureSamples, store.FailureSample{
				ArchiveID: archiveID,
				Error:     err.Error(),
			})
		}
		return nil
	}

	now := o.now()
	report := extract.Normalize(raw, archive, run.UserID, run.ID, now, redactContext(archive))

	// Tier 1: exact duplicate key.
	canonical, err := o.store.FindCanonicalByKey(ctx, run.UserID, report.DuplicateKey)
	if err != nil {
		return fmt.Errorf("exact-key lookup for archive %s: %w", archiveID, err)
	}
	if canonical != nil {
		if run.IncludeAlreadyExtracted {
			// Reprocessing refreshes the existing report in place
			// instead of minting a duplicate.
			return o.refreshReport(ctx, canonical, report)
		}
		return o.recordDuplicate(ctx, run, report, canonical.ID, store.DedupeMethodExactKey)
	}

	// Tier 2: semantic overlap against same-broker, same-company
	// canonicals.
	candidates, err := o.store.ListCanonicalCandidates(ctx, run.UserID, report.Broker, report.Company)
	if err != nil {
		return fmt.Errorf("listing semantic candidates for archive %s: %w", archiveID, err)
	}
	dedupCandidates := make([]dedup.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.ArchiveID == archiveID {
			continue
		}
		dedupCandidates = append(dedupCandidates, dedup.Candidate{
			ReportID:    c.ID,
			Title:       c.Title,
			Summary:     c.Summary,
			PublishedAt: c.PublishedAt,
		})
	}
	if match := dedup.FindSemanticMatch(report.Title, report.Summary, report.PublishedAt, dedupCandidates, o.dedup); match != nil {
		return o.recordDuplicate(ctx, run, report, match.ReportID, store.DedupeMethodSemanticOverlap)
	}

	report.ID = o.newID("rpt")
	if err := o.store.AddReport(ctx, report); err != nil {
		return fmt.Errorf("storing report for archive %s: %w", archiveID, err)
	}
	run.ExtractedReports++
	return nil
}

// recordDuplicate stores a duplicate report pointing at its canonical.
// The target is always canonical, never another duplicate, so lineage
// stays one hop deep.
func (o *Orchestrator) recordDuplicate(ctx context.Context, run *store.ExtractionRun, report *store.ExtractedReport, canonicalID, method string) error {
	report.ID = o.newID("rpt")
	report.DuplicateOf = canonicalID
	report.DedupeMethod = method
	if err := o.store.AddReport(ctx, report); err != nil {
		return fmt.Errorf("storing duplicate report for archive %s: %w", report.ArchiveID, err)
	}
	run.DuplicateReports++
	return nil
}

// refreshReport copies the freshly extracted fields onto an existing
// canonical report, preserving its identity and dedup lineage.
func (o *Orchestrator) refreshReport(ctx context.Context, existing, fresh *store.ExtractedReport) error {
	existing.Broker = fresh.Broker
	existing.Company = fresh.Company
	existing.CompanyRaw = fresh.CompanyRaw
	existing.ReportType = fresh.ReportType
	existing.Title = fresh.Title
	existing.Summary = fresh.Summary
	existing.KeyPoints = fresh.KeyPoints
	existing.PublishedAt = fresh.PublishedAt
	existing.Confidence = fresh.Confidence
	existing.RunID = fresh.RunID
	existing.UpdatedAt = o.now()
	if err := o.store.UpdateReport(ctx, existing); err != nil {
		return fmt.Errorf("refreshing report %s: %w", existing.ID, err)
	}
	return nil
}

func (o *Orchestrator) finalizeAborted(ctx context.Context, run *store.ExtractionRun) {
	now := o.now()
	run.Status = store.RunStatusAborted
	run.AbortCompletedAt = &now
	run.CompletedAt = &now
	run.UpdatedAt = now
	o.store.UpdateRunProgress(ctx, run)
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, run *store.ExtractionRun, cause error) {
	// An abort requested before the failure surfaced wins.
	if fresh, err := o.store.GetRun(ctx, run.UserID, run.ID); err == nil && fresh.AbortRequestedAt != nil {
		run.AbortRequestedAt = fresh.AbortRequestedAt
		run.AbortReason = fresh.AbortReason
		o.finalizeAborted(ctx, run)
		return
	}
	now := o.now()
	run.Status = store.RunStatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &now
	run.UpdatedAt = now
	o.store.UpdateRunProgress(ctx, run)
}

// redactContext derives the redaction hints available from an archive
// record. The archive keeps no recipient roster; pattern-based redaction
// covers addresses the sender fields miss.
func redactContext(archive *store.Archive) redact.Context {
	return redact.Context{
		SenderName:  archive.SenderName,
		SenderEmail: archive.SenderEmail,
	}
}
