package db

import (
	"context"
	"fmt"
)

// DuplicateOriginalURLs returns every original_url shared by more than one
// article row.
func (p *Pool) DuplicateOriginalURLs(ctx context.Context) ([]string, error) {
	const q = `
SELECT original_url
FROM news.articles
GROUP BY original_url
HAVING COUNT(*) > 1
ORDER BY original_url
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query duplicate urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan duplicate url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate urls: %w", err)
	}
	return urls, nil
}

// ArticlesByOriginalURL returns all rows sharing an original_url. Master
// selection order is applied by the caller.
func (p *Pool) ArticlesByOriginalURL(ctx context.Context, originalURL string) ([]Article, error) {
	q := `SELECT ` + articleColumns + ` FROM news.articles a WHERE a.original_url = $1 ORDER BY a.id`
	rows, err := p.Query(ctx, q, originalURL)
	if err != nil {
		return nil, fmt.Errorf("query articles for %q: %w", originalURL, err)
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

// MergeGroup folds every duplicate into the master inside one transaction:
// category and source edges are unioned, related edges are re-pointed in
// both directions, then the duplicate rows and their edges are removed.
// Rolling back on any failure keeps the graph free of orphaned edges.
func (p *Pool) MergeGroup(ctx context.Context, masterID int64, duplicateIDs []int64) error {
	if len(duplicateIDs) == 0 {
		return nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}

	if err := mergeGroupTx(ctx, tx, masterID, duplicateIDs); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge tx: %w", err)
	}
	return nil
}

func mergeGroupTx(ctx context.Context, tx Tx, masterID int64, duplicateIDs []int64) error {
	unionSteps := []struct {
		label string
		query string
	}{
		{
			label: "union categories",
			query: `
INSERT INTO news.article_category (article_id, category_id)
SELECT $1, category_id FROM news.article_category WHERE article_id = $2
ON CONFLICT DO NOTHING`,
		},
		{
			label: "union sources",
			query: `
INSERT INTO news.article_source (article_id, source_id)
SELECT $1, source_id FROM news.article_source WHERE article_id = $2
ON CONFLICT DO NOTHING`,
		},
		{
			label: "re-point outgoing related edges",
			query: `
INSERT INTO news.article_related (article_id, related_id)
SELECT $1, related_id FROM news.article_related
WHERE article_id = $2 AND related_id <> $1
ON CONFLICT DO NOTHING`,
		},
		{
			label: "re-point incoming related edges",
			query: `
INSERT INTO news.article_related (article_id, related_id)
SELECT article_id, $1 FROM news.article_related
WHERE related_id = $2 AND article_id <> $1
ON CONFLICT DO NOTHING`,
		},
	}

	cleanupSteps := []struct {
		label string
		query string
	}{
		{label: "delete duplicate category edges", query: `DELETE FROM news.article_category WHERE article_id = $1`},
		{label: "delete duplicate source edges", query: `DELETE FROM news.article_source WHERE article_id = $1`},
		{label: "delete duplicate related edges", query: `DELETE FROM news.article_related WHERE article_id = $1 OR related_id = $1`},
		{label: "delete duplicate article", query: `DELETE FROM news.articles WHERE id = $1`},
	}

	for _, dupID := range duplicateIDs {
		for _, step := range unionSteps {
			if _, err := tx.Exec(ctx, step.query, masterID, dupID); err != nil {
				return fmt.Errorf("%s for duplicate %d: %w", step.label, dupID, err)
			}
		}
		for _, step := range cleanupSteps {
			if _, err := tx.Exec(ctx, step.query, dupID); err != nil {
				return fmt.Errorf("%s for duplicate %d: %w", step.label, dupID, err)
			}
		}
	}
	return nil
}
