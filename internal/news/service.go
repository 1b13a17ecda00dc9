package news

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/db"
	"horse.fit/newsgraph/internal/feed"
	"horse.fit/newsgraph/internal/globaltime"
)

// DefaultSearchCooldown is how long an article stays exempt from repeat
// related-coverage searches.
const DefaultSearchCooldown = 24 * time.Hour

// GraphStore is the persistence surface the save engine needs. *db.Pool
// implements it.
type GraphStore interface {
	FindArticleByGUID(ctx context.Context, guid string) (*db.Article, error)
	FindArticleByOriginalURL(ctx context.Context, originalURL string) (*db.Article, error)
	CreateArticle(ctx context.Context, a *db.Article) error
	FillArticle(ctx context.Context, id int64, a *db.Article) error
	UpsertSource(ctx context.Context, name string, url, domain *string) (int64, error)
	AttachCategories(ctx context.Context, articleID int64, categoryIDs []int64) error
	AttachSource(ctx context.Context, articleID, sourceID int64) error
	AttachRelated(ctx context.Context, parentID, relatedID int64) error
	CategoryIDsForArticle(ctx context.Context, articleID int64) ([]int64, error)
	MarkSearched(ctx context.Context, articleID int64, at time.Time) error
	KnownIdentities(ctx context.Context) ([]string, error)
}

// ClusterDecoder turns a feed URL into decoded clusters. *feed.Decoder
// implements it.
type ClusterDecoder interface {
	Decode(ctx context.Context, feedURL string, exclude *feed.ExclusionSet, onStatus func(string), onCluster func(feed.ClusterRecord)) error
}

// Service is the cluster save engine plus the recursive discovery pass that
// grows the graph from saved articles.
type Service struct {
	store     GraphStore
	decoder   ClusterDecoder
	searchURL func(query string) string
	cooldown  time.Duration
	logger    zerolog.Logger
}

// NewService builds the save engine. decoder and searchURL may be nil when
// recursive discovery is not needed; SaveCluster then stops at depth zero.
func NewService(store GraphStore, decoder ClusterDecoder, searchURL func(string) string, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		decoder:   decoder,
		searchURL: searchURL,
		cooldown:  DefaultSearchCooldown,
		logger:    logger,
	}
}

// SaveCluster persists one decoded cluster: the main article, its related
// articles, and the category/source/related edges between them. Returns the
// articles it saved. The main item is skipped silently when its resolution
// failed or produced a link still inside the aggregator.
func (s *Service) SaveCluster(ctx context.Context, categoryIDs []int64, rec feed.ClusterRecord, maxDepth, currentDepth int) ([]db.Article, error) {
	if !usableItem(rec.Main) {
		return nil, nil
	}

	main, err := s.saveItem(ctx, rec.Main, rec.GUID, true, rec.PublishedAt, categoryIDs)
	if err != nil {
		return nil, err
	}
	saved := []db.Article{*main}

	for _, item := range rec.Related {
		if !usableItem(item) {
			continue
		}
		// Related items inherit the cluster guid, so their identity is
		// the original URL.
		related, err := s.saveItem(ctx, item, rec.GUID, false, rec.PublishedAt, categoryIDs)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", item.OriginalURL).Msg("save related article")
			continue
		}
		if related.ID != main.ID {
			if err := s.store.AttachRelated(ctx, main.ID, related.ID); err != nil {
				return saved, err
			}
			saved = append(saved, *related)
		}
	}

	if currentDepth < maxDepth {
		if err := s.CrawlRelated(ctx, main, categoryIDs, maxDepth, currentDepth+1); err != nil {
			s.logger.Warn().Err(err).Int64("article_id", main.ID).Msg("related crawl failed")
		}
	}
	return saved, nil
}

// CrawlRelated searches the feed for coverage related to an article's title
// and saves every resulting cluster at currentDepth. The article is marked
// searched afterwards regardless of outcome; an article searched within the
// cooldown window is skipped entirely.
func (s *Service) CrawlRelated(ctx context.Context, article *db.Article, categoryIDs []int64, maxDepth, currentDepth int) error {
	if s.decoder == nil || s.searchURL == nil {
		return nil
	}
	now := globaltime.UTC()
	if article.IsSearched && article.LastSearchedAt != nil && now.Sub(*article.LastSearchedAt) < s.cooldown {
		return nil
	}

	if len(categoryIDs) == 0 {
		inherited, err := s.store.CategoryIDsForArticle(ctx, article.ID)
		if err != nil {
			return fmt.Errorf("inherit categories: %w", err)
		}
		categoryIDs = inherited
	}

	defer func() {
		if err := s.store.MarkSearched(ctx, article.ID, globaltime.UTC()); err != nil {
			s.logger.Warn().Err(err).Int64("article_id", article.ID).Msg("mark article searched")
		}
	}()

	exclude, err := s.exclusionSet(ctx)
	if err != nil {
		return err
	}

	feedURL := s.searchURL(article.Title)
	s.logger.Info().Int64("article_id", article.ID).Str("feed", feedURL).Int("depth", currentDepth).Msg("searching related coverage")

	return s.decoder.Decode(ctx, feedURL, exclude,
		func(msg string) { s.logger.Info().Msg(msg) },
		func(rec feed.ClusterRecord) {
			if _, err := s.SaveCluster(ctx, categoryIDs, rec, maxDepth, currentDepth); err != nil {
				s.logger.Warn().Err(err).Str("url", rec.Main.OriginalURL).Msg("save discovered cluster")
			}
		})
}

func (s *Service) exclusionSet(ctx context.Context) (*feed.ExclusionSet, error) {
	known, err := s.store.KnownIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load exclusion set: %w", err)
	}
	return feed.NewExclusionSet(known), nil
}

// saveItem upserts a single article by identity and attaches its category
// and source edges. byGUID selects the identity key between the cluster
// guid and the original URL.
func (s *Service) saveItem(ctx context.Context, item feed.ResolvedItem, guid string, byGUID bool, publishedAt *time.Time, categoryIDs []int64) (*db.Article, error) {
	decoded := CanonicalizeURL(*item.DecodedURL)
	title := CleanTitle(item.Title, item.Source)

	candidate := &db.Article{
		Title:       title,
		OriginalURL: item.OriginalURL,
		DecodedURL:  &decoded,
		PublishedAt: publishedAt,
	}
	if guid != "" {
		candidate.GUID = &guid
	}
	if item.Source != "" {
		candidate.SourceName = &item.Source
	}
	if item.SourceURL != "" {
		candidate.SourceURL = &item.SourceURL
	}
	if domain := articleDomain(item.SourceURL, decoded); domain != "" {
		candidate.SourceDomain = &domain
	}

	article, err := s.upsertArticle(ctx, candidate, guid, byGUID)
	if err != nil {
		return nil, err
	}

	if len(categoryIDs) > 0 {
		if err := s.store.AttachCategories(ctx, article.ID, categoryIDs); err != nil {
			return nil, err
		}
	}
	if item.Source != "" {
		sourceID, err := s.store.UpsertSource(ctx, item.Source, candidate.SourceURL, candidate.SourceDomain)
		if err != nil {
			return nil, err
		}
		if err := s.store.AttachSource(ctx, article.ID, sourceID); err != nil {
			return nil, err
		}
	}
	return article, nil
}

func (s *Service) upsertArticle(ctx context.Context, candidate *db.Article, guid string, byGUID bool) (*db.Article, error) {
	var (
		existing *db.Article
		err      error
	)
	if byGUID && guid != "" {
		existing, err = s.store.FindArticleByGUID(ctx, guid)
	} else {
		existing, err = s.store.FindArticleByOriginalURL(ctx, candidate.OriginalURL)
	}
	switch {
	case err == nil:
		return s.fillExisting(ctx, existing, candidate)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("find article: %w", err)
	}

	createErr := s.store.CreateArticle(ctx, candidate)
	if createErr == nil {
		return candidate, nil
	}
	if !errors.Is(createErr, db.ErrDuplicate) {
		return nil, createErr
	}

	// A sibling ingestion run inserted the same original_url between our
	// lookup and insert. Recover by updating the winner's row.
	existing, err = s.store.FindArticleByOriginalURL(ctx, candidate.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("refetch after duplicate insert: %w", err)
	}
	return s.fillExisting(ctx, existing, candidate)
}

func (s *Service) fillExisting(ctx context.Context, existing, candidate *db.Article) (*db.Article, error) {
	if err := s.store.FillArticle(ctx, existing.ID, candidate); err != nil {
		return nil, err
	}
	updated, err := s.store.FindArticleByOriginalURL(ctx, existing.OriginalURL)
	if err != nil {
		return nil, fmt.Errorf("reload article %d: %w", existing.ID, err)
	}
	return updated, nil
}

// usableItem accepts items whose resolution produced a real destination.
func usableItem(item feed.ResolvedItem) bool {
	if item.Skipped || item.DecodedURL == nil || *item.DecodedURL == "" {
		return false
	}
	return IsActuallyDecoded(item.OriginalURL, *item.DecodedURL)
}

// articleDomain prefers the source homepage host over the decoded URL host.
func articleDomain(sourceURL, decodedURL string) string {
	if d := ExtractDomain(sourceURL); d != "" {
		return d
	}
	return ExtractDomain(decodedURL)
}
