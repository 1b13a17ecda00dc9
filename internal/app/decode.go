package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/feed"
)

// runDecode speaks the batch protocol: status events and cluster records as
// newline-delimited JSON on stdout, logs on stderr.
func runDecode(args []string) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	feedURL := fs.String("feed", "", "Feed URL to decode (required)")
	excludeFile := fs.String("exclude", "", "Path to a JSON array of known guids/urls")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*feedURL) == "" {
		fmt.Fprintln(os.Stderr, "-feed is required")
		return 2
	}

	cfg, logger, ok := setup(envLoader)
	if !ok {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser, machine, rpool, err := newResolverStack(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("launch browser")
		return 1
	}
	defer browser.Close()

	decoder := feed.NewDecoder(nil, rpool, machine, logger)
	exclude := feed.LoadExclusionSet(*excludeFile)
	emitter := newNDJSONEmitter(os.Stdout)

	err = decoder.Decode(ctx, *feedURL, exclude,
		func(msg string) { emitter.Emit(feed.NewStatus(msg)) },
		func(rec feed.ClusterRecord) { emitter.Emit(rec) })
	if err != nil {
		logger.Error().Err(err).Str("feed", *feedURL).Msg("decode feed")
		return 1
	}
	if ctx.Err() != nil {
		return 1
	}
	return 0
}
