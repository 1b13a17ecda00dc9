package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	rssparser "github.com/mmcdole/gofeed/rss"
	"github.com/rs/zerolog"

	"horse.fit/newsgraph/internal/resolver"
)

// BatchRunner schedules per-item work over a bounded set of browser
// sessions. *resolver.Pool implements it.
type BatchRunner interface {
	Run(ctx context.Context, n int, work func(ctx context.Context, index int, page resolver.Page))
}

// LinkResolver resolves one URL on a page. *resolver.Machine implements it.
type LinkResolver interface {
	Resolve(ctx context.Context, page resolver.Page, url string) (string, bool)
}

// Decoder parses a feed into clusters and resolves every link in them.
// One page is reused sequentially across a cluster's main and related
// links; different clusters run concurrently on the runner.
type Decoder struct {
	client  *http.Client
	runner  BatchRunner
	resolve LinkResolver
	logger  zerolog.Logger
}

func NewDecoder(client *http.Client, runner BatchRunner, resolve LinkResolver, logger zerolog.Logger) *Decoder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Decoder{client: client, runner: runner, resolve: resolve, logger: logger}
}

// Decode fetches feedURL, drops items whose identity key is in exclude,
// resolves the rest and hands each finished cluster to onCluster. onCluster
// is called from worker goroutines and must be safe for concurrent use.
// onStatus receives one summary line before resolution starts.
func (d *Decoder) Decode(ctx context.Context, feedURL string, exclude *ExclusionSet, onStatus func(string), onCluster func(ClusterRecord)) error {
	clusters, total, known, err := d.parseFeed(ctx, feedURL, exclude)
	if err != nil {
		return err
	}
	if onStatus != nil {
		onStatus(fmt.Sprintf("RSS check complete: %d clusters found, %d already decoded, %d new clusters to process.", total, known, len(clusters)))
	}
	if len(clusters) == 0 {
		return nil
	}

	d.runner.Run(ctx, len(clusters), func(ctx context.Context, i int, page resolver.Page) {
		rec := clusters[i]
		if page == nil {
			d.logger.Debug().Str("url", rec.Main.OriginalURL).Msg("no session for cluster, dropping")
			return
		}
		d.resolveCluster(ctx, page, &rec)
		onCluster(rec)
	})
	return nil
}

func (d *Decoder) resolveCluster(ctx context.Context, page resolver.Page, rec *ClusterRecord) {
	resolveItem(ctx, d.resolve, page, &rec.Main)
	for i := range rec.Related {
		if ctx.Err() != nil {
			rec.Related[i].Skipped = true
			continue
		}
		resolveItem(ctx, d.resolve, page, &rec.Related[i])
	}
}

func resolveItem(ctx context.Context, r LinkResolver, page resolver.Page, item *ResolvedItem) {
	decoded, ok := r.Resolve(ctx, page, item.OriginalURL)
	if !ok {
		item.Skipped = true
		return
	}
	item.DecodedURL = &decoded
}

func (d *Decoder) parseFeed(ctx context.Context, feedURL string, exclude *ExclusionSet) (clusters []ClusterRecord, total, known int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, 0, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}

	parsed, err := (&rssparser.Parser{}).Parse(resp.Body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("parse feed: %w", err)
	}

	total = len(parsed.Items)
	for _, item := range parsed.Items {
		if item == nil || item.Link == "" {
			continue
		}
		if exclude != nil && exclude.Has(identityKey(item)) {
			known++
			continue
		}
		clusters = append(clusters, buildCluster(item))
	}
	return clusters, total, known, nil
}

// identityKey prefers the item guid and falls back to the link.
func identityKey(item *rssparser.Item) string {
	if item.GUID != nil && item.GUID.Value != "" {
		return item.GUID.Value
	}
	return item.Link
}

func buildCluster(item *rssparser.Item) ClusterRecord {
	rec := ClusterRecord{
		Main: ResolvedItem{
			Title:       strings.TrimSpace(item.Title),
			OriginalURL: item.Link,
		},
		PublishedAt: item.PubDateParsed,
	}
	if item.GUID != nil {
		rec.GUID = item.GUID.Value
	}
	if item.Source != nil {
		rec.Main.Source = strings.TrimSpace(item.Source.Title)
		rec.Main.SourceURL = item.Source.URL
	}
	rec.Related = parseRelated(item.Description, &rec.Main)
	return rec
}

// parseRelated extracts related coverage from the item body. Each entry is
// an li with an anchor and a font-styled source label. An entry pointing at
// the main URL supplies the main item's source label when the RSS source
// element left it empty, instead of becoming a separate related item.
func parseRelated(description string, main *ResolvedItem) []ResolvedItem {
	if description == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return nil
	}

	var related []ResolvedItem
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		anchor := li.Find("a").First()
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return
		}
		title := strings.TrimSpace(anchor.Text())
		label := strings.TrimSpace(li.Find("font").Last().Text())

		if href == main.OriginalURL {
			if main.Source == "" && label != "" {
				main.Source = label
			}
			return
		}
		related = append(related, ResolvedItem{
			Title:       title,
			OriginalURL: href,
			Source:      label,
		})
	})
	return related
}
