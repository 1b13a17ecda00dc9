package db

import (
	"context"
	"fmt"
	"time"
)

// UpsertCategory creates or updates a category keyed by name.
func (p *Pool) UpsertCategory(ctx context.Context, name, rssURL string) (int64, error) {
	const q = `
INSERT INTO news.categories (name, rss_url, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (name) DO UPDATE SET
	rss_url = EXCLUDED.rss_url,
	updated_at = EXCLUDED.updated_at
RETURNING id
`
	var id int64
	if err := p.QueryRow(ctx, q, name, nullifEmpty(rssURL), time.Now().UTC()).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert category %q: %w", name, err)
	}
	return id, nil
}

// AttachSubcategory adds a directed parent -> sub category edge, deduplicated.
func (p *Pool) AttachSubcategory(ctx context.Context, parentID, categoryID int64) error {
	const q = `
INSERT INTO news.category_related (parent_id, category_id)
VALUES ($1, $2)
ON CONFLICT DO NOTHING
`
	if _, err := p.Exec(ctx, q, parentID, categoryID); err != nil {
		return fmt.Errorf("attach subcategory %d to category %d: %w", categoryID, parentID, err)
	}
	return nil
}

// CategoriesWithFeeds lists categories carrying a feed URL.
func (p *Pool) CategoriesWithFeeds(ctx context.Context) ([]Category, error) {
	const q = `
SELECT id, name, rss_url, created_at, updated_at
FROM news.categories
WHERE rss_url IS NOT NULL AND rss_url <> ''
ORDER BY name
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.RSSURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}
