package db

import (
	"time"
)

// Article maps news.articles. Identity is original_url (globally unique);
// guid may repeat across a cluster and is indexed but not unique.
type Article struct {
	ID             int64      `gorm:"column:id;primaryKey;autoIncrement"`
	GUID           *string    `gorm:"column:guid;type:text;index"`
	Title          string     `gorm:"column:title;type:text;not null"`
	OriginalURL    string     `gorm:"column:original_url;type:text;not null;uniqueIndex"`
	DecodedURL     *string    `gorm:"column:decoded_url;type:text"`
	SourceName     *string    `gorm:"column:source_name;type:text"`
	SourceURL      *string    `gorm:"column:source_url;type:text"`
	SourceDomain   *string    `gorm:"column:source_domain;type:text"`
	PublishedAt    *time.Time `gorm:"column:published_at;type:timestamptz"`
	IsSearched     bool       `gorm:"column:is_searched;type:boolean;not null;default:false"`
	LastSearchedAt *time.Time `gorm:"column:last_searched_at;type:timestamptz"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Article) TableName() string { return "news.articles" }

// Source maps news.sources. Identity is name.
type Source struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:text;not null;uniqueIndex"`
	URL       *string   `gorm:"column:url;type:text"`
	Domain    *string   `gorm:"column:domain;type:text"`
	IsActive  bool      `gorm:"column:is_active;type:boolean;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Source) TableName() string { return "news.sources" }

// Category maps news.categories. Seeded from configuration; consumed
// read-only by the save engine.
type Category struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;type:text;not null;uniqueIndex"`
	RSSURL    *string   `gorm:"column:rss_url;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Category) TableName() string { return "news.categories" }

// ArticleCategory maps news.article_category.
type ArticleCategory struct {
	ArticleID  int64 `gorm:"column:article_id;type:bigint;primaryKey"`
	CategoryID int64 `gorm:"column:category_id;type:bigint;primaryKey"`
}

func (ArticleCategory) TableName() string { return "news.article_category" }

// ArticleSource maps news.article_source.
type ArticleSource struct {
	ArticleID int64 `gorm:"column:article_id;type:bigint;primaryKey"`
	SourceID  int64 `gorm:"column:source_id;type:bigint;primaryKey"`
}

func (ArticleSource) TableName() string { return "news.article_source" }

// ArticleRelated maps news.article_related: a directed parent -> related
// edge between articles, deduplicated by the composite key.
type ArticleRelated struct {
	ArticleID int64 `gorm:"column:article_id;type:bigint;primaryKey"`
	RelatedID int64 `gorm:"column:related_id;type:bigint;primaryKey"`
}

func (ArticleRelated) TableName() string { return "news.article_related" }

// CategoryRelated maps news.category_related: parent -> sub category edges.
type CategoryRelated struct {
	ParentID   int64 `gorm:"column:parent_id;type:bigint;primaryKey"`
	CategoryID int64 `gorm:"column:category_id;type:bigint;primaryKey"`
}

func (CategoryRelated) TableName() string { return "news.category_related" }

func autoMigrateModels() []any {
	return []any{
		&Article{},
		&Source{},
		&Category{},
		&ArticleCategory{},
		&ArticleSource{},
		&ArticleRelated{},
		&CategoryRelated{},
	}
}
