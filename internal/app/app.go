package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "seed":
		return runSeed(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "decode":
		return runDecode(args[1:])
	case "resolve":
		return runResolve(args[1:])
	case "resolve-pending":
		return runResolvePending(args[1:])
	case "deep-crawl":
		return runDeepCrawl(args[1:])
	case "merge-duplicates":
		return runMergeDuplicates(args[1:])
	case "clean":
		return runClean(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "newsgraph CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  newsgraph <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health           Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  seed             Upsert categories from a YAML seed file")
	fmt.Fprintln(os.Stderr, "  fetch            Decode category feeds and save article clusters")
	fmt.Fprintln(os.Stderr, "  decode           Decode one feed and stream clusters as NDJSON")
	fmt.Fprintln(os.Stderr, "  resolve          Resolve a JSON file of {id, url} pairs to NDJSON")
	fmt.Fprintln(os.Stderr, "  resolve-pending  Resolve stored articles still missing a decoded URL")
	fmt.Fprintln(os.Stderr, "  deep-crawl       Search related coverage for unsearched articles")
	fmt.Fprintln(os.Stderr, "  merge-duplicates Collapse articles sharing an original URL")
	fmt.Fprintln(os.Stderr, "  clean            Re-clean titles and backfill source domains")
	fmt.Fprintln(os.Stderr, "  serve            Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"newsgraph <command> -h\" for command-specific flags.")
}
