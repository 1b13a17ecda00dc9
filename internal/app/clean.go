package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/news"
)

// runClean re-applies title cleaning to stored articles, backfills missing
// source domains from their URLs, and populates the sources table from the
// article source labels.
func runClean(args []string) int {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	dryRun := fs.Bool("dry-run", false, "Report changes without writing them")

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

	articles, err := pool.ArticlesWithSourceName(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load articles")
		return 1
	}

	cleaned, sources := cleanArticles(ctx, pool, articles, *dryRun, logger)

	if ctx.Err() != nil {
		return 1
	}
	fmt.Printf("ok: %d articles cleaned, %d sources populated\n", cleaned, sources)
	return 0
}

// cleanStore is the persistence surface of the sweep. *db.Pool implements it.
type cleanStore interface {
	UpdateTitleAndDomain(ctx context.Context, articleID int64, title string, domain *string) error
	UpsertSource(ctx context.Context, name string, url, domain *string) (int64, error)
	AttachSource(ctx context.Context, articleID, sourceID int64) error
}

// cleanArticles re-cleans titles, backfills missing source domains, and
// upserts-and-attaches a source for every article carrying a source name.
// Returns how many articles changed and how many source edges were written.
func cleanArticles(ctx context.Context, store cleanStore, articles []db.Article, dryRun bool, logger zerolog.Logger) (cleaned, sources int) {
	for _, a := range articles {
		if ctx.Err() != nil {
			break
		}
		name := derefOr(a.SourceName, "")
		title := news.CleanTitle(a.Title, name)
		domain := backfillDomain(a)

		if dryRun {
			if title != a.Title || domain != nil {
				logger.Info().Int64("article_id", a.ID).Str("title", title).Msg("would clean article")
				cleaned++
			}
			if name != "" {
				logger.Info().Int64("article_id", a.ID).Str("source", name).Msg("would populate source")
				sources++
			}
			continue
		}

		if title != a.Title || domain != nil {
			if err := store.UpdateTitleAndDomain(ctx, a.ID, title, domain); err != nil {
				logger.Warn().Err(err).Int64("article_id", a.ID).Msg("clean article")
				continue
			}
			cleaned++
		}
		if name == "" {
			continue
		}
		sourceDomain := a.SourceDomain
		if domain != nil {
			sourceDomain = domain
		}
		sourceID, err := store.UpsertSource(ctx, name, a.SourceURL, sourceDomain)
		if err != nil {
			logger.Warn().Err(err).Str("source", name).Msg("upsert source")
			continue
		}
		if err := store.AttachSource(ctx, a.ID, sourceID); err != nil {
			logger.Warn().Err(err).Int64("article_id", a.ID).Msg("attach source")
			continue
		}
		sources++
	}
	return cleaned, sources
}

// backfillDomain derives a source domain for rows missing one.
func backfillDomain(a db.Article) *string {
	if a.SourceDomain != nil && *a.SourceDomain != "" {
		return nil
	}
	for _, candidate := range []*string{a.SourceURL, a.DecodedURL} {
		if candidate == nil {
			continue
		}
		if domain := news.ExtractDomain(*candidate); domain != "" {
			return &domain
		}
	}
	return nil
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
