package db

import (
	"context"
	"fmt"
	"time"
)

// PendingArticle is a persisted article still missing a decoded URL.
type PendingArticle struct {
	ID          int64
	OriginalURL string
}

const articleColumns = `
	a.id,
	a.guid,
	a.title,
	a.original_url,
	a.decoded_url,
	a.source_name,
	a.source_url,
	a.source_domain,
	a.published_at,
	a.is_searched,
	a.last_searched_at,
	a.created_at,
	a.updated_at
`

func scanArticle(scanner interface{ Scan(...any) error }) (*Article, error) {
	var a Article
	if err := scanner.Scan(
		&a.ID,
		&a.GUID,
		&a.Title,
		&a.OriginalURL,
		&a.DecodedURL,
		&a.SourceName,
		&a.SourceURL,
		&a.SourceDomain,
		&a.PublishedAt,
		&a.IsSearched,
		&a.LastSearchedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindArticleByGUID returns the oldest article carrying the guid, or ErrNoRows.
func (p *Pool) FindArticleByGUID(ctx context.Context, guid string) (*Article, error) {
	q := `SELECT ` + articleColumns + ` FROM news.articles a WHERE a.guid = $1 ORDER BY a.created_at ASC LIMIT 1`
	a, err := scanArticle(p.QueryRow(ctx, q, guid))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindArticleByOriginalURL returns the article for the unique original URL, or ErrNoRows.
func (p *Pool) FindArticleByOriginalURL(ctx context.Context, originalURL string) (*Article, error) {
	q := `SELECT ` + articleColumns + ` FROM news.articles a WHERE a.original_url = $1 LIMIT 1`
	a, err := scanArticle(p.QueryRow(ctx, q, originalURL))
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateArticle inserts a new article row. A unique violation on
// original_url comes back wrapped so callers can recover with a re-fetch.
func (p *Pool) CreateArticle(ctx context.Context, a *Article) error {
	const q = `
INSERT INTO news.articles
	(guid, title, original_url, decoded_url, source_name, source_url, source_domain, published_at, is_searched, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, $9)
RETURNING id, created_at
`
	now := time.Now().UTC()
	err := p.QueryRow(ctx, q,
		a.GUID, a.Title, a.OriginalURL, a.DecodedURL,
		a.SourceName, a.SourceURL, a.SourceDomain, a.PublishedAt, now,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("insert article %q: %w", a.OriginalURL, ErrDuplicate)
		}
		return fmt.Errorf("insert article %q: %w", a.OriginalURL, err)
	}
	a.UpdatedAt = now
	return nil
}

// FillArticle applies fill-in-the-blanks semantics: only fields that are
// currently NULL or empty on the stored row are overwritten. A populated
// decoded_url is never regressed.
func (p *Pool) FillArticle(ctx context.Context, id int64, a *Article) error {
	const q = `
UPDATE news.articles SET
	guid = COALESCE(guid, $2),
	title = COALESCE(NULLIF(title, ''), $3),
	decoded_url = COALESCE(NULLIF(decoded_url, ''), $4),
	source_name = COALESCE(NULLIF(source_name, ''), $5),
	source_url = COALESCE(NULLIF(source_url, ''), $6),
	source_domain = COALESCE(NULLIF(source_domain, ''), $7),
	published_at = COALESCE(published_at, $8),
	updated_at = $9
WHERE id = $1
`
	_, err := p.Exec(ctx, q,
		id, a.GUID, nullifEmpty(a.Title), a.DecodedURL,
		a.SourceName, a.SourceURL, a.SourceDomain, a.PublishedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("fill article %d: %w", id, err)
	}
	return nil
}

// UpsertSource creates or updates a source keyed by name and returns its id.
func (p *Pool) UpsertSource(ctx context.Context, name string, url, domain *string) (int64, error) {
	const q = `
INSERT INTO news.sources (name, url, domain, is_active, created_at, updated_at)
VALUES ($1, $2, $3, TRUE, $4, $4)
ON CONFLICT (name) DO UPDATE SET
	url = COALESCE(EXCLUDED.url, news.sources.url),
	domain = COALESCE(EXCLUDED.domain, news.sources.domain),
	updated_at = EXCLUDED.updated_at
RETURNING id
`
	var id int64
	if err := p.QueryRow(ctx, q, name, url, domain, time.Now().UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert source %q: %w", name, err)
	}
	return id, nil
}

// AttachCategories unions category edges onto an article.
func (p *Pool) AttachCategories(ctx context.Context, articleID int64, categoryIDs []int64) error {
	const q = `
INSERT INTO news.article_category (article_id, category_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`
	for _, categoryID := range categoryIDs {
		if _, err := p.Exec(ctx, q, articleID, categoryID); err != nil {
			return fmt.Errorf("attach category %d to article %d: %w", categoryID, articleID, err)
		}
	}
	return nil
}

// AttachSource unions a source edge onto an article.
func (p *Pool) AttachSource(ctx context.Context, articleID, sourceID int64) error {
	const q = `
INSERT INTO news.article_source (article_id, source_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`
	if _, err := p.Exec(ctx, q, articleID, sourceID); err != nil {
		return fmt.Errorf("attach source %d to article %d: %w", sourceID, articleID, err)
	}
	return nil
}

// AttachRelated adds a directed parent -> related edge, deduplicated.
func (p *Pool) AttachRelated(ctx context.Context, parentID, relatedID int64) error {
	const q = `
INSERT INTO news.article_related (article_id, related_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`
	if _, err := p.Exec(ctx, q, parentID, relatedID); err != nil {
		return fmt.Errorf("attach related %d to article %d: %w", relatedID, parentID, err)
	}
	return nil
}

// CategoryIDsForArticle lists the article's category edge targets.
func (p *Pool) CategoryIDsForArticle(ctx context.Context, articleID int64) ([]int64, error) {
	const q = `SELECT category_id FROM news.article_category WHERE article_id = $1 ORDER BY category_id`
	rows, err := p.Query(ctx, q, articleID)
	if err != nil {
		return nil, fmt.Errorf("query article categories: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan category id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category ids: %w", err)
	}
	return ids, nil
}

// MarkSearched stamps the rate-limiting search mark regardless of outcome.
func (p *Pool) MarkSearched(ctx context.Context, articleID int64, at time.Time) error {
	const q = `UPDATE news.articles SET is_searched = TRUE, last_searched_at = $2, updated_at = $2 WHERE id = $1`
	if _, err := p.Exec(ctx, q, articleID, at.UTC()); err != nil {
		return fmt.Errorf("mark article %d searched: %w", articleID, err)
	}
	return nil
}

// KnownIdentities returns every non-empty guid and original_url in the
// graph, for the decoder exclusion set.
func (p *Pool) KnownIdentities(ctx context.Context) ([]string, error) {
	const q = `
SELECT guid FROM news.articles WHERE guid IS NOT NULL AND guid <> ''
UNION
SELECT original_url FROM news.articles WHERE original_url <> ''
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query known identities: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}

// PendingArticles lists articles still missing a decoded URL.
func (p *Pool) PendingArticles(ctx context.Context) ([]PendingArticle, error) {
	const q = `SELECT id, original_url FROM news.articles WHERE decoded_url IS NULL ORDER BY id`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query pending articles: %w", err)
	}
	defer rows.Close()

	var pending []PendingArticle
	for rows.Next() {
		var item PendingArticle
		if err := rows.Scan(&item.ID, &item.OriginalURL); err != nil {
			return nil, fmt.Errorf("scan pending article: %w", err)
		}
		pending = append(pending, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending articles: %w", err)
	}
	return pending, nil
}

// SetDecodedURL stores a decoded URL only when the row does not have one
// yet. Returns true when the row was updated.
func (p *Pool) SetDecodedURL(ctx context.Context, articleID int64, decodedURL string) (bool, error) {
	const q = `
UPDATE news.articles SET decoded_url = $2, updated_at = $3
WHERE id = $1 AND (decoded_url IS NULL OR decoded_url = '')
`
	tag, err := p.Exec(ctx, q, articleID, decodedURL, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("set decoded url on article %d: %w", articleID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnsearchedArticles lists the newest articles not yet deep-crawled.
func (p *Pool) UnsearchedArticles(ctx context.Context, limit int) ([]Article, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	q := `SELECT ` + articleColumns + ` FROM news.articles a WHERE a.is_searched = FALSE ORDER BY a.created_at DESC LIMIT $1`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsearched articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unsearched article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsearched articles: %w", err)
	}
	return articles, nil
}

// ArticlesWithSourceName lists articles carrying a source label, for the
// clean-and-populate sweep.
func (p *Pool) ArticlesWithSourceName(ctx context.Context) ([]Article, error) {
	q := `SELECT ` + articleColumns + ` FROM news.articles a WHERE a.source_name IS NOT NULL AND a.source_name <> '' ORDER BY a.id`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query articles with source: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// UpdateTitleAndDomain rewrites a cleaned title and backfilled domain.
func (p *Pool) UpdateTitleAndDomain(ctx context.Context, articleID int64, title string, domain *string) error {
	const q = `
UPDATE news.articles SET
	title = $2,
	source_domain = COALESCE($3, source_domain),
	updated_at = $4
WHERE id = $1
`
	if _, err := p.Exec(ctx, q, articleID, title, domain, time.Now().UTC()); err != nil {
		return fmt.Errorf("update article %d title: %w", articleID, err)
	}
	return nil
}

func nullifEmpty(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
