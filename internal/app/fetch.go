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

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/feed"
	"horse.fit/newsgraph/internal/news"
)

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	categoryID := fs.Int64("category-id", 0, "Only fetch this category (0 = all categories)")
	depth := fs.Int("depth", 0, "Related-coverage search depth after saving")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *depth < 0 {
		fmt.Fprintln(os.Stderr, "depth must be >= 0")
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

	categories, err := pool.CategoriesWithFeeds(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load categories")
		return 1
	}
	if *categoryID != 0 {
		categories = filterCategory(categories, *categoryID)
		if len(categories) == 0 {
			fmt.Fprintf(os.Stderr, "category %d not found or has no feed\n", *categoryID)
			return 1
		}
	}
	if len(categories) == 0 {
		fmt.Println("ok: no categories with feeds")
		return 0
	}

	browser, machine, rpool, err := newResolverStack(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("launch browser")
		return 1
	}
	defer browser.Close()

	decoder := feed.NewDecoder(nil, rpool, machine, logger)
	service := news.NewService(pool, decoder, cfg.SearchFeedURL, logger)

	known, err := pool.KnownIdentities(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load exclusion set")
		return 1
	}
	exclude := feed.NewExclusionSet(known)

	var saved atomic.Int64
	for _, cat := range categories {
		if ctx.Err() != nil {
			break
		}
		catLogger := logger.With().Int64("category_id", cat.ID).Str("category", cat.Name).Logger()
		catLogger.Info().Msg("fetching category feed")

		err := decoder.Decode(ctx, *cat.RSSURL, exclude,
			func(msg string) { catLogger.Info().Msg(msg) },
			func(rec feed.ClusterRecord) {
				articles, err := service.SaveCluster(ctx, []int64{cat.ID}, rec, *depth, 0)
				if err != nil {
					catLogger.Warn().Err(err).Str("url", rec.Main.OriginalURL).Msg("save cluster")
					return
				}
				saved.Add(int64(len(articles)))
			})
		if err != nil {
			catLogger.Error().Err(err).Msg("decode category feed")
			continue
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warn().Msg("fetch interrupted")
		return 1
	}
	fmt.Printf("ok: %d articles saved\n", saved.Load())
	return 0
}

func filterCategory(categories []db.Category, id int64) []db.Category {
	for _, cat := range categories {
		if cat.ID == id {
			return []db.Category{cat}
		}
	}
	return nil
}
