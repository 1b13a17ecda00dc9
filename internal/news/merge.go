package news

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/db"
)

// MergeStore is the persistence surface the merge engine needs. *db.Pool
// implements it.
type MergeStore interface {
	DuplicateOriginalURLs(ctx context.Context) ([]string, error)
	ArticlesByOriginalURL(ctx context.Context, originalURL string) ([]db.Article, error)
	MergeGroup(ctx context.Context, masterID int64, duplicateIDs []int64) error
}

// MergePolicy picks the master of a duplicate group: it returns the index
// of the article that survives. The group always has at least two members.
type MergePolicy func(group []db.Article) int

// DefaultMergePolicy prefers a present guid, then a present decoded URL
// (larger strings first in both cases), then the earliest creation time.
// The ordering is a heuristic tie-break; ties beyond these keys are
// arbitrary.
func DefaultMergePolicy(group []db.Article) int {
	indexes := make([]int, len(group))
	for i := range indexes {
		indexes[i] = i
	}
	sort.SliceStable(indexes, func(x, y int) bool {
		a, b := group[indexes[x]], group[indexes[y]]
		if c := comparePtrDesc(a.GUID, b.GUID); c != 0 {
			return c < 0
		}
		if c := comparePtrDesc(a.DecodedURL, b.DecodedURL); c != 0 {
			return c < 0
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return indexes[0]
}

// comparePtrDesc orders descending with absent values last.
func comparePtrDesc(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a > *b:
		return -1
	case *a < *b:
		return 1
	default:
		return 0
	}
}

// Merger collapses groups of articles sharing an original URL into a single
// master article, unioning their graph edges.
type Merger struct {
	store  MergeStore
	policy MergePolicy
	logger zerolog.Logger
}

func NewMerger(store MergeStore, logger zerolog.Logger) *Merger {
	return &Merger{store: store, policy: DefaultMergePolicy, logger: logger}
}

// WithPolicy replaces the master-selection heuristic.
func (m *Merger) WithPolicy(policy MergePolicy) *Merger {
	m.policy = policy
	return m
}

// MergeDuplicates scans for duplicate groups and merges each one in its own
// transaction. A group that fails to merge is logged and skipped so the
// sweep still covers the rest; the count of removed duplicates is returned.
func (m *Merger) MergeDuplicates(ctx context.Context) (int, error) {
	urls, err := m.store.DuplicateOriginalURLs(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan duplicate groups: %w", err)
	}

	merged := 0
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		group, err := m.store.ArticlesByOriginalURL(ctx, url)
		if err != nil {
			m.logger.Warn().Err(err).Str("original_url", url).Msg("load duplicate group")
			continue
		}
		if len(group) < 2 {
			// Another run already collapsed this group.
			continue
		}

		masterIdx := m.policy(group)
		master := group[masterIdx]
		duplicateIDs := make([]int64, 0, len(group)-1)
		for i, a := range group {
			if i != masterIdx {
				duplicateIDs = append(duplicateIDs, a.ID)
			}
		}

		if err := m.store.MergeGroup(ctx, master.ID, duplicateIDs); err != nil {
			m.logger.Warn().Err(err).Str("original_url", url).Int64("master_id", master.ID).Msg("merge duplicate group")
			continue
		}
		merged += len(duplicateIDs)
		m.logger.Info().Str("original_url", url).Int64("master_id", master.ID).Int("duplicates", len(duplicateIDs)).Msg("merged duplicate group")
	}
	return merged, nil
}
