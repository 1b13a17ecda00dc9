package db

import (
	"context"
	"fmt"
	"time"
)

// ArticleListOptions controls article listing queries.
type ArticleListOptions struct {
	CategoryID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// ArticleListItem is used by the serve API and the articles CLI command.
type ArticleListItem struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	OriginalURL  string     `json:"original_url"`
	DecodedURL   *string    `json:"decoded_url,omitempty"`
	SourceName   *string    `json:"source_name,omitempty"`
	SourceDomain *string    `json:"source_domain,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	IsSearched   bool       `json:"is_searched"`
	CreatedAt    time.Time  `json:"created_at"`
}

// GraphStats summarizes the persisted article graph.
type GraphStats struct {
	Articles        int64 `json:"articles"`
	DecodedArticles int64 `json:"decoded_articles"`
	PendingArticles int64 `json:"pending_articles"`
	Sources         int64 `json:"sources"`
	Categories      int64 `json:"categories"`
	RelatedEdges    int64 `json:"related_edges"`
}

// ListArticles lists articles in a UTC created_at window, newest first.
func (p *Pool) ListArticles(ctx context.Context, opts ArticleListOptions) ([]ArticleListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return nil, fmt.Errorf("from must be before to")
	}

	const q = `
SELECT
	a.id,
	a.title,
	a.original_url,
	a.decoded_url,
	a.source_name,
	a.source_domain,
	a.published_at,
	a.is_searched,
	a.created_at
FROM news.articles a
WHERE a.created_at >= $1
  AND a.created_at < $2
  AND ($3 = 0 OR EXISTS (
		SELECT 1 FROM news.article_category ac
		WHERE ac.article_id = a.id AND ac.category_id = $3
  ))
ORDER BY a.created_at DESC, a.id DESC
LIMIT $4
`

	rows, err := p.Query(ctx, q, from, to, opts.CategoryID, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	items := make([]ArticleListItem, 0, opts.Limit)
	for rows.Next() {
		var row ArticleListItem
		if err := rows.Scan(
			&row.ID,
			&row.Title,
			&row.OriginalURL,
			&row.DecodedURL,
			&row.SourceName,
			&row.SourceDomain,
			&row.PublishedAt,
			&row.IsSearched,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}

	return items, nil
}

// ListSources lists every source, active first.
func (p *Pool) ListSources(ctx context.Context) ([]Source, error) {
	const q = `
SELECT id, name, url, domain, is_active, created_at, updated_at
FROM news.sources
ORDER BY is_active DESC, name
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Domain, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return sources, nil
}

// Stats reports graph-wide counts.
func (p *Pool) Stats(ctx context.Context) (GraphStats, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM news.articles),
	(SELECT COUNT(*) FROM news.articles WHERE decoded_url IS NOT NULL AND decoded_url <> ''),
	(SELECT COUNT(*) FROM news.articles WHERE decoded_url IS NULL OR decoded_url = ''),
	(SELECT COUNT(*) FROM news.sources),
	(SELECT COUNT(*) FROM news.categories),
	(SELECT COUNT(*) FROM news.article_related)
`
	var stats GraphStats
	if err := p.QueryRow(ctx, q).Scan(
		&stats.Articles,
		&stats.DecodedArticles,
		&stats.PendingArticles,
		&stats.Sources,
		&stats.Categories,
		&stats.RelatedEdges,
	); err != nil {
		return GraphStats{}, fmt.Errorf("query graph stats: %w", err)
	}
	return stats, nil
}
