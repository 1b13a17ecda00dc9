package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/resolver"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
<title>Top stories</title>
%s
</channel></rss>`

const itemTemplate = `<item>
<title>%s</title>
<link>%s</link>
<guid isPermaLink="false">%s</guid>
<pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
<description><![CDATA[<ol>%s</ol>]]></description>
<source url="https://pub.example.com">Pub Example</source>
</item>`

const itemTemplateNoSource = `<item>
<title>%s</title>
<link>%s</link>
<guid isPermaLink="false">%s</guid>
<pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
<description><![CDATA[<ol>%s</ol>]]></description>
</item>`

func relatedLI(href, title, label string) string {
	return fmt.Sprintf(`<li><a href="%s" target="_blank">%s</a>&nbsp;&nbsp;<font color="#6f6f6f">%s</font></li>`, href, title, label)
}

type stubPage struct{}

func (stubPage) Navigate(context.Context, string, bool) error { return nil }
func (stubPage) Location(context.Context) (string, error)     { return "", nil }
func (stubPage) AcceptConsent(context.Context)                {}

// inlineRunner executes all work sequentially on stub pages.
type inlineRunner struct{}

func (inlineRunner) Run(ctx context.Context, n int, work func(ctx context.Context, index int, page resolver.Page)) {
	for i := 0; i < n; i++ {
		work(ctx, i, stubPage{})
	}
}

// mapResolver resolves URLs from a fixed table; anything absent fails.
type mapResolver struct {
	mu      sync.Mutex
	decoded map[string]string
	calls   []string
}

func (r *mapResolver) Resolve(_ context.Context, _ resolver.Page, url string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, url)
	d, ok := r.decoded[url]
	return d, ok
}

func serveFeed(t *testing.T, items ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, feedTemplate, strings.Join(items, "\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collectClusters(t *testing.T, d *Decoder, feedURL string, exclude *ExclusionSet) ([]ClusterRecord, []string) {
	t.Helper()
	var (
		mu       sync.Mutex
		clusters []ClusterRecord
		statuses []string
	)
	err := d.Decode(context.Background(), feedURL, exclude,
		func(msg string) { statuses = append(statuses, msg) },
		func(rec ClusterRecord) {
			mu.Lock()
			defer mu.Unlock()
			clusters = append(clusters, rec)
		})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return clusters, statuses
}

func TestDecoderResolvesClusterWithRelated(t *testing.T) {
	t.Parallel()

	mainURL := "https://news.google.com/rss/articles/main1"
	relURL := "https://news.google.com/rss/articles/rel1"
	srv := serveFeed(t, fmt.Sprintf(itemTemplate,
		"Big story - Pub Example", mainURL, "guid-1",
		relatedLI(mainURL, "Big story", "Main Label")+
			relatedLI(relURL, "Related take", "Other Outlet"),
	))

	res := &mapResolver{decoded: map[string]string{
		mainURL: "https://pub.example.com/big-story",
		relURL:  "https://other.example.com/take",
	}}
	d := NewDecoder(srv.Client(), inlineRunner{}, res, zerolog.Nop())

	clusters, statuses := collectClusters(t, d, srv.URL, NewExclusionSet(nil))
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	rec := clusters[0]
	if rec.GUID != "guid-1" {
		t.Errorf("guid = %q", rec.GUID)
	}
	if rec.PublishedAt == nil {
		t.Error("pubDate was not parsed")
	}
	if rec.Main.DecodedURL == nil || *rec.Main.DecodedURL != "https://pub.example.com/big-story" {
		t.Errorf("main decoded = %v", rec.Main.DecodedURL)
	}
	// The RSS source element wins over the matching related entry's label,
	// and that entry never becomes a related item.
	if rec.Main.Source != "Pub Example" {
		t.Errorf("main source = %q, want the RSS source element", rec.Main.Source)
	}
	if len(rec.Related) != 1 {
		t.Fatalf("got %d related items, want 1", len(rec.Related))
	}
	if rec.Related[0].Source != "Other Outlet" || rec.Related[0].Title != "Related take" {
		t.Errorf("related = %+v", rec.Related[0])
	}
	if rec.Related[0].DecodedURL == nil || *rec.Related[0].DecodedURL != "https://other.example.com/take" {
		t.Errorf("related decoded = %v", rec.Related[0].DecodedURL)
	}

	if len(statuses) != 1 {
		t.Fatalf("got %d status lines, want 1", len(statuses))
	}
	want := "RSS check complete: 1 clusters found, 0 already decoded, 1 new clusters to process."
	if statuses[0] != want {
		t.Errorf("status = %q", statuses[0])
	}
}

func TestDecoderFillsMainSourceFromRelatedEntryWhenMissing(t *testing.T) {
	t.Parallel()

	mainURL := "https://news.google.com/rss/articles/main3"
	srv := serveFeed(t, fmt.Sprintf(itemTemplateNoSource,
		"Big story", mainURL, "guid-3",
		relatedLI(mainURL, "Big story", "Fallback Outlet"),
	))

	res := &mapResolver{decoded: map[string]string{mainURL: "https://pub.example.com/big-story"}}
	d := NewDecoder(srv.Client(), inlineRunner{}, res, zerolog.Nop())

	clusters, _ := collectClusters(t, d, srv.URL, NewExclusionSet(nil))
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	rec := clusters[0]
	if rec.Main.Source != "Fallback Outlet" {
		t.Errorf("main source = %q, want label from the matching related entry", rec.Main.Source)
	}
	if len(rec.Related) != 0 {
		t.Errorf("got %d related items, want the matching entry folded into the main", len(rec.Related))
	}
}

func TestDecoderMarksUnresolvedItemsSkipped(t *testing.T) {
	t.Parallel()

	mainURL := "https://news.google.com/rss/articles/main2"
	srv := serveFeed(t, fmt.Sprintf(itemTemplate,
		"Story", mainURL, "guid-2", relatedLI("https://news.google.com/rss/articles/dead", "Dead", "Outlet"),
	))

	res := &mapResolver{decoded: map[string]string{mainURL: "https://pub.example.com/story"}}
	d := NewDecoder(srv.Client(), inlineRunner{}, res, zerolog.Nop())

	clusters, _ := collectClusters(t, d, srv.URL, NewExclusionSet(nil))
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1", len(clusters))
	}
	rec := clusters[0]
	if rec.Main.Skipped {
		t.Error("main item skipped despite a successful resolution")
	}
	if !rec.Related[0].Skipped || rec.Related[0].DecodedURL != nil {
		t.Errorf("unresolved related item = %+v, want skipped with null decoded URL", rec.Related[0])
	}
}

func TestDecoderFiltersExcludedItems(t *testing.T) {
	t.Parallel()

	srv := serveFeed(t,
		fmt.Sprintf(itemTemplate, "Known", "https://news.google.com/rss/articles/known", "guid-known", ""),
		fmt.Sprintf(itemTemplate, "Fresh", "https://news.google.com/rss/articles/fresh", "guid-fresh", ""),
	)

	res := &mapResolver{decoded: map[string]string{
		"https://news.google.com/rss/articles/fresh": "https://pub.example.com/fresh",
	}}
	d := NewDecoder(srv.Client(), inlineRunner{}, res, zerolog.Nop())

	clusters, statuses := collectClusters(t, d, srv.URL, NewExclusionSet([]string{"guid-known"}))
	if len(clusters) != 1 || clusters[0].GUID != "guid-fresh" {
		t.Fatalf("clusters = %+v, want only the fresh item", clusters)
	}
	want := "RSS check complete: 2 clusters found, 1 already decoded, 1 new clusters to process."
	if statuses[0] != want {
		t.Errorf("status = %q", statuses[0])
	}
	for _, call := range res.calls {
		if strings.Contains(call, "known") {
			t.Errorf("excluded item was resolved: %s", call)
		}
	}
}

func TestDecoderFeedErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	d := NewDecoder(srv.Client(), inlineRunner{}, &mapResolver{}, zerolog.Nop())
	err := d.Decode(context.Background(), srv.URL, nil, nil, func(ClusterRecord) {
		t.Error("cluster emitted from a failed fetch")
	})
	if err == nil {
		t.Fatal("expected an error for a non-200 feed response")
	}
}

func TestLoadExclusionSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "exclude.json")
	if err := os.WriteFile(path, []byte(`["guid-a","https://news.google.com/rss/articles/b"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	set := LoadExclusionSet(path)
	if set.Len() != 2 || !set.Has("guid-a") {
		t.Fatalf("set = %d entries, Has(guid-a) = %v", set.Len(), set.Has("guid-a"))
	}

	if got := LoadExclusionSet(filepath.Join(dir, "missing.json")); got.Len() != 0 {
		t.Errorf("missing file should degrade to an empty set, got %d entries", got.Len())
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := LoadExclusionSet(bad); got.Len() != 0 {
		t.Errorf("unparseable file should degrade to an empty set, got %d entries", got.Len())
	}
}
