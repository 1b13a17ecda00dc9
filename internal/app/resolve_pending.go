package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/config"
	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/news"
)

func runResolvePending(args []string) int {
	fs := flag.NewFlagSet("resolve-pending", flag.ContinueOnError)
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

	resolved, failed, err := resolvePendingArticles(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("resolve pending articles")
		return 1
	}
	if ctx.Err() != nil {
		return 1
	}
	fmt.Printf("ok: %d resolved, %d still pending\n", resolved, failed)
	return 0
}

// resolvePendingArticles sweeps articles missing a decoded URL through the
// resolver. Shared with the deep-crawl command.
func resolvePendingArticles(ctx context.Context, cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (int64, int64, error) {
	pending, err := pool.PendingArticles(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}
	logger.Info().Int("pending", len(pending)).Msg("resolving pending articles")

	browser, _, rpool, err := newResolverStack(ctx, cfg, logger)
	if err != nil {
		return 0, 0, err
	}
	defer browser.Close()

	urls := make([]string, len(pending))
	for i, item := range pending {
		urls[i] = item.OriginalURL
	}

	var resolved, failed atomic.Int64
	rpool.ResolveBatch(ctx, urls, func(index int, decoded string, ok bool) {
		item := pending[index]
		if !ok || !news.IsActuallyDecoded(item.OriginalURL, decoded) {
			failed.Add(1)
			return
		}
		updated, err := pool.SetDecodedURL(ctx, item.ID, news.CanonicalizeURL(decoded))
		if err != nil {
			logger.Warn().Err(err).Int64("article_id", item.ID).Msg("store decoded url")
			failed.Add(1)
			return
		}
		if updated {
			resolved.Add(1)
		}
	})
	return resolved.Load(), failed.Load(), nil
}
