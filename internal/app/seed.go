package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"horse.fit/newsgraph/internal/cli"
	"horse.fit/newsgraph/internal/db"
)

type categorySeedFile struct {
	Categories []categorySeed `yaml:"categories"`
}

type categorySeed struct {
	Name          string         `yaml:"name"`
	URL           string         `yaml:"url"`
	Subcategories []categorySeed `yaml:"subcategories"`
}

func runSeed(args []string) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to the category seed YAML (defaults to CATEGORY_FILE)")

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

	path := strings.TrimSpace(*file)
	if path == "" {
		path = cfg.CategoryFile
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("read category seed file")
		fmt.Fprintf(os.Stderr, "Failed to read seed file: %v\n", err)
		return 1
	}

	var seed categorySeedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		logger.Error().Err(err).Str("file", path).Msg("parse category seed file")
		fmt.Fprintf(os.Stderr, "Failed to parse seed file: %v\n", err)
		return 1
	}
	if len(seed.Categories) == 0 {
		fmt.Println("ok: no categories to seed")
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("connect database")
		return 1
	}
	defer pool.Close()

	seeded, err := seedCategories(ctx, pool, seed.Categories, logger)
	if err != nil {
		logger.Error().Err(err).Msg("seed categories")
		return 1
	}

	fmt.Printf("ok: %d categories seeded\n", seeded)
	return 0
}

// categorySeedStore is the persistence surface of the seeder. *db.Pool
// implements it.
type categorySeedStore interface {
	UpsertCategory(ctx context.Context, name, rssURL string) (int64, error)
	AttachSubcategory(ctx context.Context, parentID, categoryID int64) error
}

// seedCategories upserts the category tree and writes a parent -> sub edge
// for every nested entry. A category without a url is still created so its
// subcategory edges resolve; it just never joins the fetch rotation.
func seedCategories(ctx context.Context, store categorySeedStore, cats []categorySeed, logger zerolog.Logger) (int, error) {
	seeded := 0
	for _, cat := range cats {
		n, err := seedCategory(ctx, store, cat, 0, logger)
		seeded += n
		if err != nil {
			return seeded, err
		}
	}
	return seeded, nil
}

func seedCategory(ctx context.Context, store categorySeedStore, cat categorySeed, parentID int64, logger zerolog.Logger) (int, error) {
	name := strings.TrimSpace(cat.Name)
	if name == "" {
		logger.Warn().Msg("skipping category without a name")
		return 0, nil
	}
	id, err := store.UpsertCategory(ctx, name, categoryFeedURL(strings.TrimSpace(cat.URL)))
	if err != nil {
		return 0, fmt.Errorf("upsert category %q: %w", name, err)
	}
	if parentID != 0 {
		if err := store.AttachSubcategory(ctx, parentID, id); err != nil {
			return 0, err
		}
	}
	logger.Info().Int64("category_id", id).Str("category", name).Msg("category seeded")

	seeded := 1
	for _, sub := range cat.Subcategories {
		n, err := seedCategory(ctx, store, sub, id, logger)
		seeded += n
		if err != nil {
			return seeded, err
		}
	}
	return seeded, nil
}

// categoryFeedURL turns a topic page URL into its RSS form.
func categoryFeedURL(raw string) string {
	if strings.Contains(raw, "/rss/") {
		return raw
	}
	return strings.Replace(raw, "/topics/", "/rss/topics/", 1)
}
