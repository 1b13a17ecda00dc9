package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// fakeCategoryStore records upserts and parent/sub edges in memory.
type fakeCategoryStore struct {
	nextID int64
	ids    map[string]int64
	urls   map[string]string
	edges  map[[2]int64]bool
}

func newFakeCategoryStore() *fakeCategoryStore {
	return &fakeCategoryStore{
		ids:   map[string]int64{},
		urls:  map[string]string{},
		edges: map[[2]int64]bool{},
	}
}

func (s *fakeCategoryStore) UpsertCategory(_ context.Context, name, rssURL string) (int64, error) {
	s.urls[name] = rssURL
	if id, ok := s.ids[name]; ok {
		return id, nil
	}
	s.nextID++
	s.ids[name] = s.nextID
	return s.nextID, nil
}

func (s *fakeCategoryStore) AttachSubcategory(_ context.Context, parentID, categoryID int64) error {
	s.edges[[2]int64{parentID, categoryID}] = true
	return nil
}

func TestSeedCategoriesWritesSubcategoryEdges(t *testing.T) {
	t.Parallel()

	raw := `
categories:
  - name: Politics
    url: https://news.google.com/topics/POL?hl=ru
    subcategories:
      - name: Elections
        url: https://news.google.com/topics/ELE?hl=ru
      - name: Regional
  - name: Science
    url: https://news.google.com/rss/topics/SCI?hl=ru
`
	var seed categorySeedFile
	if err := yaml.Unmarshal([]byte(raw), &seed); err != nil {
		t.Fatal(err)
	}

	store := newFakeCategoryStore()
	seeded, err := seedCategories(context.Background(), store, seed.Categories, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if seeded != 4 {
		t.Errorf("seeded = %d, want every category including nested ones", seeded)
	}
	if got := store.urls["Politics"]; got != "https://news.google.com/rss/topics/POL?hl=ru" {
		t.Errorf("Politics url = %q, want the rss form", got)
	}
	if got := store.urls["Regional"]; got != "" {
		t.Errorf("Regional url = %q, want empty for a feed-less subcategory", got)
	}
	parent := store.ids["Politics"]
	for _, sub := range []string{"Elections", "Regional"} {
		if !store.edges[[2]int64{parent, store.ids[sub]}] {
			t.Errorf("missing parent edge Politics -> %s", sub)
		}
	}
	if len(store.edges) != 2 {
		t.Errorf("got %d edges, want only the two Politics subcategories", len(store.edges))
	}
}

func TestCategoryFeedURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{
			"https://news.google.com/topics/CAAqJggK?hl=ru&gl=RU&ceid=RU:ru",
			"https://news.google.com/rss/topics/CAAqJggK?hl=ru&gl=RU&ceid=RU:ru",
		},
		{
			"https://news.google.com/rss/topics/CAAqJggK?hl=ru",
			"https://news.google.com/rss/topics/CAAqJggK?hl=ru",
		},
		{
			"https://news.google.com/rss/search?q=test",
			"https://news.google.com/rss/search?q=test",
		},
	}
	for _, tc := range tests {
		if got := categoryFeedURL(tc.in); got != tc.want {
			t.Errorf("categoryFeedURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
