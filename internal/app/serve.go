package app

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/httpapi"
	"horse.fit/newsgraph/internal/news"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Listen host")
	port := fs.Int("port", 8090, "Listen port")

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

	merger := news.NewMerger(pool, logger)
	server := httpapi.NewServer(pool, merger, logger, httpapi.Options{
		Host: *host,
		Port: *port,
	})

	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server failed")
		return 1
	}
	return 0
}
