// Command livesync-log views and analyzes sync trace files.
//
// Trace files are written by livesync with the -trace flag (or the
// logging.trace_file setting).
//
// Usage:
//
//	livesync-log <command> [flags] <file.slog>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSONL or CSV
//	filter   Filter trace file and write to new file
//	stats    Show per-feed statistics
//
// Examples:
//
//	# View all status transitions
//	livesync-log view -category state sync.slog
//
//	# View coalescer summaries for funding rates
//	livesync-log view -resource funding_rates -layer coalescer sync.slog
//
//	# Export to JSONL
//	livesync-log export -format jsonl sync.slog
//
//	# Keep one subscription and save to a new file
//	livesync-log filter -sub-id 3f2a9c1e -o positions.slog sync.slog
//
//	# Show statistics
//	livesync-log stats sync.slog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fundingarb/livesync/cmd/livesync-log/commands"
)

const usage = `livesync-log - livesync Trace Analyzer

Usage:
  livesync-log <command> [flags] <file.slog>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSONL or CSV
  filter   Filter trace file and write to new file
  stats    Show per-feed statistics

Use "livesync-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the flags shared by view, export and filter.
func filterFlags(fs *flag.FlagSet) *commands.FilterOptions {
	opts := &commands.FilterOptions{}
	fs.StringVar(&opts.SubscriptionID, "sub-id", "", "Filter by subscription ID")
	fs.StringVar(&opts.Resource, "resource", "", "Filter by resource")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, subscription, coalescer, collection)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (state, change, summary, error)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return opts
}

func newFlagSet(name, text string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, text)
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and returns the trace path.
func parse(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", `livesync-log view - View trace file in human-readable format

Usage:
  livesync-log view [flags] <file.slog>

Flags:
`)
	opts := filterFlags(fs)
	path := parse(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", `livesync-log export - Export trace file to JSONL or CSV

Usage:
  livesync-log export [flags] <file.slog>

Flags:
`)
	opts := filterFlags(fs)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parse(fs, args)

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	if err := commands.RunExport(path, filter, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", `livesync-log filter - Filter trace file and write to new file

Usage:
  livesync-log filter [flags] -o <out.slog> <file.slog>

Flags:
`)
	opts := filterFlags(fs)
	output := fs.String("o", "", "Output file (required)")
	path := parse(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := opts.Build()
	if err != nil {
		fail(err)
	}
	n, err := commands.RunFilter(path, filter, *output)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, *output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", `livesync-log stats - Show per-feed statistics

Usage:
  livesync-log stats <file.slog>

`)
	path := parse(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}
