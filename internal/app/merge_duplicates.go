package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/news"
)

func runMergeDuplicates(args []string) int {
	fs := flag.NewFlagSet("merge-duplicates", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, ok := setup(envLoader)
	if !ok {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("connect database")
		return 1
	}
	defer pool.Close()

	merged, err := news.NewMerger(pool, logger).MergeDuplicates(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("merge duplicates")
		return 1
	}

	fmt.Printf("ok: %d duplicates merged\n", merged)
	return 0
}
