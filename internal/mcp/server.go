// Package mcp provides a Model Context Protocol server for the insights
// pipeline.
//
// It exposes run orchestration (trigger, status, abort), report queries,
// and archive import as MCP tools, plus pipeline statistics as an MCP
// resource. Supports stdio transport for desktop MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/ingest"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/orchestrator"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Version      string // version string for MCP server info
}

// dbMu serializes MCP tool calls that touch the database. The mcp-go
// library dispatches handlers concurrently via goroutines; SQLite (even
// with WAL) supports only one writer at a time, so imports must complete
// before a triggered run can see their archives.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all insights tools and
// resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Brokerage Insights",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerTriggerRunTool(s, cfg.Orchestrator)
	registerListRunsTool(s, cfg.Orchestrator)
	registerRunStatusTool(s, cfg.Orchestrator)
	registerAbortRunTool(s, cfg.Orchestrator)
	registerListReportsTool(s, cfg.Orchestrator)
	registerImportArchivesTool(s, cfg.Store)
	registerStatsTool(s, cfg.Store)

	registerStatsResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerTriggerRunTool(s *server.MCPServer, orch *orchestrator.Orchestrator) {
	tool := mcp.NewTool("insights_trigger_run",
		mcp.WithDescription("Trigger an extraction run over a user's archived broker emails. Returns the run snapshot immediately in queued status; poll insights_run_status for progress."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User whose archives to process"),
		),
		mcp.WithString("archive_ids",
			mcp.Description("Comma-separated archive id allow-list. Omit to process all archives for the user."),
		),
		mcp.WithString("broker",
			mcp.Description("Restrict to archives from one broker (ignored when archive_ids is given)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum archives to process (default and max: 1000)"),
		),
		mcp.WithBoolean("include_already_extracted",
			mcp.Description("Reprocess archives that already have reports, refreshing exact-key matches in place (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		opts := orchestrator.TriggerOptions{Trigger: "mcp"}
		if ids, err := req.RequireString("archive_ids"); err == nil {
			opts.ArchiveIDs = splitIDList(ids)
		}
		if broker, err := req.RequireString("broker"); err == nil {
			opts.Broker = broker
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			opts.Limit = int(limitVal)
		}
		if include, err := req.RequireBool("include_already_extracted"); err == nil {
			opts.IncludeAlreadyExtracted = include
		}

		run, err := orch.TriggerRun(ctx, userID, opts)
		if err != nil {
			return toolError("trigger", err), nil
		}
		return jsonResult(run), nil
	})
}

func registerListRunsTool(s *server.MCPServer, orch *orchestrator.Orchestrator) {
	tool := mcp.NewTool("insights_list_runs",
		mcp.WithDescription("List extraction runs for a user, newest first, with progress counters."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User whose runs to list"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by run status"),
			mcp.Enum("queued", "running", "completed", "failed", "aborted"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to return (default: 20, max: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Pagination offset"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		opts := orchestrator.ListRunsOptions{}
		if status, err := req.RequireString("status"); err == nil {
			opts.Status = status
		}
		if limitVal, err := req.RequireFloat("limit"); err == nil {
			opts.Limit = int(limitVal)
		}
		if offsetVal, err := req.RequireFloat("offset"); err == nil {
			opts.Offset = int(offsetVal)
		}

		page, err := orch.ListRuns(ctx, userID, opts)
		if err != nil {
			return toolError("list runs", err), nil
		}
		return jsonResult(page), nil
	})
}

func registerRunStatusTool(s *server.MCPServer, orch *orchestrator.Orchestrator) {
	tool := mcp.NewTool("insights_run_status",
		mcp.WithDescription("Get the full snapshot of one extraction run, including failure samples and abort state."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User owning the run"),
		),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run id returned by insights_trigger_run"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}
		runID, err := req.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}

		run, err := orch.GetRunStatus(ctx, userID, runID)
		if err != nil {
			return toolError("run status", err), nil
		}
		return jsonResult(run), nil
	})
}

func registerAbortRunTool(s *server.MCPServer, orch *orchestrator.Orchestrator) {
	tool := mcp.NewTool("insights_abort_run",
		mcp.WithDescription("Request cancellation of a run. Queued runs abort immediately; running runs stop after the in-flight archive finishes. Aborting a finished run is a no-op."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User owning the run"),
		),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("Run to abort"),
		),
		mcp.WithString("reason",
			mcp.Description("Free-text abort reason recorded on the run"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}
		runID, err := req.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}
		reason := ""
		if r, err := req.RequireString("reason"); err == nil {
			reason = r
		}

		res, err := orch.AbortRun(ctx, userID, runID, reason)
		if err != nil {
			return toolError("abort", err), nil
		}
		return jsonResult(res), nil
	})
}

func registerListReportsTool(s *server.MCPServer, orch *orchestrator.Orchestrator) {
	tool := mcp.NewTool("insights_list_reports",
		mcp.WithDescription("List extracted research reports for a user, newest-published-first. String filters are case-insensitive substring matches; date bounds are inclusive ISO 8601. Duplicates are hidden unless requested."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User whose reports to list"),
		),
		mcp.WithString("broker",
			mcp.Description("Filter by broker name substring"),
		),
		mcp.WithString("report_type",
			mcp.Description("Filter by exact report type (e.g. initiation, results_update)"),
		),
		mcp.WithString("run_id",
			mcp.Description("Only reports produced by one run"),
		),
		mcp.WithString("company",
			mcp.Description("Filter by company name substring"),
		),
		mcp.WithString("query",
			mcp.Description("Free-text match against title or summary"),
		),
		mcp.WithString("published_from",
			mcp.Description("Inclusive lower publication bound (ISO 8601 date or timestamp)"),
		),
		mcp.WithString("published_to",
			mcp.Description("Inclusive upper publication bound (ISO 8601 date or timestamp)"),
		),
		mcp.WithBoolean("include_duplicates",
			mcp.Description("Include duplicate reports alongside canonicals (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum reports to return (default: 20, max: 100)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Pagination offset"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		opts := orchestrator.ListReportsOptions{}
		if v, err := req.RequireString("broker"); err == nil {
			opts.Broker = v
		}
		if v, err := req.RequireString("report_type"); err == nil {
			opts.ReportType = v
		}
		if v, err := req.RequireString("run_id"); err == nil {
			opts.RunID = v
		}
		if v, err := req.RequireString("company"); err == nil {
			opts.Company = v
		}
		if v, err := req.RequireString("query"); err == nil {
			opts.Query = v
		}
		if v, err := req.RequireString("published_from"); err == nil {
			opts.PublishedFrom = v
		}
		if v, err := req.RequireString("published_to"); err == nil {
			opts.PublishedTo = v
		}
		if v, err := req.RequireBool("include_duplicates"); err == nil {
			opts.IncludeDuplicates = v
		}
		if v, err := req.RequireFloat("limit"); err == nil {
			opts.Limit = int(v)
		}
		if v, err := req.RequireFloat("offset"); err == nil {
			opts.Offset = int(v)
		}

		page, err := orch.ListReports(ctx, userID, opts)
		if err != nil {
			return toolError("list reports", err), nil
		}
		return jsonResult(page), nil
	})
}

func registerImportArchivesTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("insights_import_archives",
		mcp.WithDescription("Import archived broker emails from a JSON, JSONL, or CSV export file on the server's filesystem. Existing archive ids are skipped, never overwritten."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User to import archives for"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the export file"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Parse and validate without writing (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcp.NewToolResultError("user_id is required"), nil
		}
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError("path is required"), nil
		}
		dryRun := false
		if v, err := req.RequireBool("dry_run"); err == nil {
			dryRun = v
		}

		res, err := ingest.ImportFile(ctx, st, path, ingest.Options{UserID: userID, DryRun: dryRun})
		if err != nil {
			return toolError("import", err), nil
		}
		return jsonResult(res), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("insights_stats",
		mcp.WithDescription("Show pipeline statistics: archive, run, report, and duplicate counts plus database size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return toolError("stats", err), nil
		}
		return jsonResult(stats), nil
	})
}

// --- Helpers ---

// splitIDList parses a comma-separated id list. A present-but-empty value
// means "explicitly no archives", which is distinct from omitting the
// parameter entirely.
func splitIDList(s string) []string {
	ids := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func jsonResult(v any) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data))
}

func toolError(op string, err error) *mcp.CallToolResult {
	if orchestrator.IsValidationError(err) {
		return mcp.NewToolResultError(err.Error())
	}
	if errors.Is(err, store.ErrRunNotFound) || errors.Is(err, store.ErrReportNotFound) {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s error: %v", op, err))
}
