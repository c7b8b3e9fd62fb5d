package main

import (
	"fmt"
	"os"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "trigger":
		err = runTrigger(os.Args[2:])
	case "runs":
		err = runListRuns(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "abort":
		err = runAbort(os.Args[2:])
	case "reports":
		err = runListReports(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("insights %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`insights %s — Brokerage research extraction pipeline

Usage:
  insights <command> [arguments]

Commands:
  import <path>       Import archived broker emails from a JSON/JSONL/CSV export
  trigger             Trigger an extraction run over a user's archives
  runs                List extraction runs
  status <run-id>     Show one run's full snapshot
  abort <run-id>      Request cancellation of a run
  reports             List extracted reports
  stats               Show pipeline statistics
  serve               Run the MCP server on stdio
  version             Print version

Common Flags:
  --user <id>         User to operate as (required for most commands)
  --config <path>     Config file (default ~/.insights/config.yaml)

Import Flags:
  -n, --dry-run       Parse and validate without writing

Trigger Flags:
  --archives <ids>    Comma-separated archive id allow-list
  --broker <name>     Restrict to one broker
  --limit <n>         Maximum archives to process (max 1000)
  --include-extracted Reprocess already-extracted archives (refresh in place)
  --wait              Block until the run reaches a terminal status

Reports Flags:
  --broker, --type, --run, --company, --query
  --from, --to        Inclusive publication date bounds (ISO 8601)
  --duplicates        Include duplicate reports
  --limit, --offset   Pagination

Flags:
  -h, --help          Show this help message
  -v, --version       Print version
`, version)
}
