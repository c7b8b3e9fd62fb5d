package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/config"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/extract"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/ingest"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/mcp"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/orchestrator"
	"github.com/pkeday/brokerage-insights-mvp-sub000/internal/store"
)

// app bundles the wired-up pipeline for one CLI invocation.
type app struct {
	cfg  config.Config
	st   store.Store
	orch *orchestrator.Orchestrator
}

func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var adapter extract.Adapter
	if cfg.Model.Endpoint != "" {
		adapter = extract.NewModelAdapter(extract.ModelConfig{
			Endpoint: cfg.Model.Endpoint,
			APIKey:   cfg.Model.APIKey,
			Model:    cfg.Model.Model,
			Timeout:  cfg.Model.ModelTimeout(),
		})
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Store:          st,
		Adapter:        adapter,
		Dedup:          cfg.Dedup,
		MaxRunArchives: cfg.Limits.MaxRunArchives,
		MaxPageSize:    cfg.Limits.MaxPageSize,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, st: st, orch: orch}, nil
}

func (a *app) close() {
	a.orch.Close()
	a.st.Close()
}

// flagSet is a minimal key/value argument parser: flags may take a value
// (--user u1) and positional arguments are collected in order.
type flagSet struct {
	values     map[string]string
	bools      map[string]bool
	positional []string
}

func parseFlags(args []string, valueFlags, boolFlags []string) (*flagSet, error) {
	fs := &flagSet{values: map[string]string{}, bools: map[string]bool{}}
	takesValue := map[string]bool{}
	for _, f := range valueFlags {
		takesValue[f] = true
	}
	isBool := map[string]bool{}
	for _, f := range boolFlags {
		isBool[f] = true
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			fs.positional = append(fs.positional, arg)
			continue
		}
		name := strings.TrimLeft(arg, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			val := name[eq+1:]
			name = name[:eq]
			if !takesValue[name] {
				return nil, fmt.Errorf("flag --%s does not take a value", name)
			}
			fs.values[name] = val
			continue
		}
		switch {
		case isBool[name]:
			fs.bools[name] = true
		case takesValue[name]:
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag --%s requires a value", name)
			}
			i++
			fs.values[name] = args[i]
		default:
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
	}
	return fs, nil
}

func (fs *flagSet) intValue(name string) (int, error) {
	v, ok := fs.values[name]
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("flag --%s: %q is not a number", name, v)
	}
	return n, nil
}

func requireUser(fs *flagSet) (string, error) {
	user := fs.values["user"]
	if user == "" {
		return "", fmt.Errorf("--user is required")
	}
	return user, nil
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func runImport(args []string) error {
	fs, err := parseFlags(args, []string{"user", "config"}, []string{"dry-run", "n"})
	if err != nil {
		return err
	}
	if len(fs.positional) == 0 {
		return fmt.Errorf("usage: insights import <path> --user <id> [--dry-run]")
	}
	user, err := requireUser(fs)
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	dryRun := fs.bools["dry-run"] || fs.bools["n"]
	if dryRun {
		fmt.Println("Dry run mode — no changes will be written")
	}

	ctx := context.Background()
	for _, path := range fs.positional {
		res, err := ingest.ImportFile(ctx, a.st, path, ingest.Options{UserID: user, DryRun: dryRun})
		if err != nil {
			fmt.Fprintf(os.Stderr, "  Error importing %s: %v\n", path, err)
			continue
		}
		fmt.Printf("%s: %d parsed, %d inserted, %d skipped\n", path, res.Parsed, res.Inserted, res.Skipped)
	}
	return nil
}

func runTrigger(args []string) error {
	fs, err := parseFlags(args,
		[]string{"user", "config", "archives", "broker", "limit"},
		[]string{"include-extracted", "wait"})
	if err != nil {
		return err
	}
	user, err := requireUser(fs)
	if err != nil {
		return err
	}
	limit, err := fs.intValue("limit")
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	opts := orchestrator.TriggerOptions{
		Broker:                  fs.values["broker"],
		Limit:                   limit,
		IncludeAlreadyExtracted: fs.bools["include-extracted"],
		Trigger:                 "cli",
	}
	if archives, ok := fs.values["archives"]; ok {
		ids := []string{}
		for _, id := range strings.Split(archives, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		opts.ArchiveIDs = ids
	}

	ctx := context.Background()
	run, err := a.orch.TriggerRun(ctx, user, opts)
	if err != nil {
		return err
	}

	if !fs.bools["wait"] {
		printJSON(run)
		return nil
	}

	for !store.IsTerminalStatus(run.Status) {
		time.Sleep(200 * time.Millisecond)
		run, err = a.orch.GetRunStatus(ctx, user, run.ID)
		if err != nil {
			return err
		}
	}
	printJSON(run)
	return nil
}

func runListRuns(args []string) error {
	fs, err := parseFlags(args, []string{"user", "config", "status", "limit", "offset"}, nil)
	if err != nil {
		return err
	}
	user, err := requireUser(fs)
	if err != nil {
		return err
	}
	limit, err := fs.intValue("limit")
	if err != nil {
		return err
	}
	offset, err := fs.intValue("offset")
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	page, err := a.orch.ListRuns(context.Background(), user, orchestrator.ListRunsOptions{
		Status: fs.values["status"],
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	printJSON(page)
	return nil
}

func runStatus(args []string) error {
	fs, err := parseFlags(args, []string{"user", "config"}, nil)
	if err != nil {
		return err
	}
	if len(fs.positional) != 1 {
		return fmt.Errorf("usage: insights status <run-id> --user <id>")
	}
	user, err := requireUser(fs)
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.orch.GetRunStatus(context.Background(), user, fs.positional[0])
	if err != nil {
		return err
	}
	printJSON(run)
	return nil
}

func runAbort(args []string) error {
	fs, err := parseFlags(args, []string{"user", "config", "reason"}, nil)
	if err != nil {
		return err
	}
	if len(fs.positional) != 1 {
		return fmt.Errorf("usage: insights abort <run-id> --user <id> [--reason <text>]")
	}
	user, err := requireUser(fs)
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.orch.AbortRun(context.Background(), user, fs.positional[0], fs.values["reason"])
	if err != nil {
		return err
	}
	printJSON(res)
	return nil
}

func runListReports(args []string) error {
	fs, err := parseFlags(args,
		[]string{"user", "config", "broker", "type", "run", "company", "query", "from", "to", "limit", "offset"},
		[]string{"duplicates"})
	if err != nil {
		return err
	}
	user, err := requireUser(fs)
	if err != nil {
		return err
	}
	limit, err := fs.intValue("limit")
	if err != nil {
		return err
	}
	offset, err := fs.intValue("offset")
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	page, err := a.orch.ListReports(context.Background(), user, orchestrator.ListReportsOptions{
		Broker:            fs.values["broker"],
		ReportType:        fs.values["type"],
		RunID:             fs.values["run"],
		Company:           fs.values["company"],
		Query:             fs.values["query"],
		PublishedFrom:     fs.values["from"],
		PublishedTo:       fs.values["to"],
		IncludeDuplicates: fs.bools["duplicates"],
		Limit:             limit,
		Offset:            offset,
	})
	if err != nil {
		return err
	}
	printJSON(page)
	return nil
}

func runStats(args []string) error {
	fs, err := parseFlags(args, []string{"config"}, nil)
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.st.Stats(context.Background())
	if err != nil {
		return err
	}
	printJSON(stats)
	return nil
}

func runServe(args []string) error {
	fs, err := parseFlags(args, []string{"config"}, nil)
	if err != nil {
		return err
	}

	a, err := openApp(fs.values["config"])
	if err != nil {
		return err
	}
	defer a.close()

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:        a.st,
		Orchestrator: a.orch,
		Version:      version,
	})
	return server.ServeStdio(srv)
}
