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
	"horse.fit/newsgraph/internal/feed"
	"horse.fit/newsgraph/internal/news"
)

// runDeepCrawl searches related coverage for articles not yet searched,
// then resolves whatever is still pending and collapses duplicates.
func runDeepCrawl(args []string) int {
	fs := flag.NewFlagSet("deep-crawl", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 20, "Maximum number of articles to crawl")
	depth := fs.Int("depth", 1, "Maximum related-coverage search depth")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit < 1 || *depth < 1 {
		fmt.Fprintln(os.Stderr, "limit and depth must be >= 1")
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

	articles, err := pool.UnsearchedArticles(ctx, *limit)
	if err != nil {
		logger.Error().Err(err).Msg("load unsearched articles")
		return 1
	}
	if len(articles) == 0 {
		fmt.Println("ok: nothing to crawl")
		return 0
	}

	browser, machine, rpool, err := newResolverStack(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("launch browser")
		return 1
	}

	decoder := feed.NewDecoder(nil, rpool, machine, logger)
	service := news.NewService(pool, decoder, cfg.SearchFeedURL, logger)

	crawled := 0
	for i := range articles {
		if ctx.Err() != nil {
			break
		}
		article := &articles[i]
		if err := service.CrawlRelated(ctx, article, nil, *depth, 0); err != nil {
			logger.Warn().Err(err).Int64("article_id", article.ID).Msg("crawl related coverage")
			continue
		}
		crawled++
	}
	// The shared browser is no longer needed; the pending sweep opens its
	// own.
	browser.Close()

	if ctx.Err() != nil {
		logger.Warn().Msg("deep crawl interrupted")
		return 1
	}

	resolved, stillPending, err := resolvePendingArticles(ctx, cfg, pool, logger)
	if err != nil {
		logger.Error().Err(err).Msg("resolve pending articles")
		return 1
	}

	merged, err := news.NewMerger(pool, logger).MergeDuplicates(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("merge duplicates")
		return 1
	}

	fmt.Printf("ok: %d articles crawled, %d resolved, %d still pending, %d duplicates merged\n",
		crawled, resolved, stillPending, merged)
	return 0
}
