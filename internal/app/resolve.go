package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"horse.fit/newsgraph/internal/cli"
	payloadschema "horse.fit/newsgraph/schema"
)

// pendingResult is one output line of the pending-resolver protocol. The id
// is echoed back exactly as supplied.
type pendingResult struct {
	ID          json.RawMessage `json:"id"`
	OriginalURL string          `json:"original_url"`
	DecodedURL  *string         `json:"decoded_url"`
}

// runResolve speaks the pending-resolver protocol: a JSON array of {id, url}
// in, one NDJSON result per item out.
func runResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	input := fs.String("input", "", "Path to a JSON array of {id, url} (required)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*input) == "" {
		fmt.Fprintln(os.Stderr, "-input is required")
		return 2
	}

	cfg, logger, ok := setup(envLoader)
	if !ok {
		return 1
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		logger.Error().Err(err).Str("file", *input).Msg("read input file")
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		return 1
	}
	items, err := payloadschema.ValidatePendingItems(raw)
	if err != nil {
		logger.Error().Err(err).Str("file", *input).Msg("validate input file")
		fmt.Fprintf(os.Stderr, "Invalid input: %v\n", err)
		return 1
	}
	if len(items) == 0 {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser, _, rpool, err := newResolverStack(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("launch browser")
		return 1
	}
	defer browser.Close()

	urls := make([]string, len(items))
	for i, item := range items {
		urls[i] = item.URL
	}

	emitter := newNDJSONEmitter(os.Stdout)
	rpool.ResolveBatch(ctx, urls, func(index int, decoded string, ok bool) {
		result := pendingResult{
			ID:          items[index].ID,
			OriginalURL: items[index].URL,
		}
		if ok {
			result.DecodedURL = &decoded
		}
		emitter.Emit(result)
	})

	if ctx.Err() != nil {
		return 1
	}
	return 0
}
