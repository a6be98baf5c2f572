// Package discovery finds videos for a keyword, enriches them with channel
// statistics, filters them and computes their view velocity.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"velocity-scout/agents/velocity-scout/youtube"
	"velocity-scout/internal/models"
)

// MaxPages caps how many search pages one run may request.
const MaxPages = 20

// Catalog is the remote video catalog the pipeline searches.
type Catalog interface {
	Search(ctx context.Context, keyword, order, pageToken string) (*youtube.SearchPage, error)
	Videos(ctx context.Context, ids []string) ([]youtube.VideoRecord, error)
	ChannelSubscribers(ctx context.Context, ids []string) (map[string]int64, error)
}

// CatalogFactory builds a Catalog authenticated with apiKey.
type CatalogFactory func(ctx context.Context, apiKey string) (Catalog, error)

// ProgressFunc receives human-readable progress lines.
type ProgressFunc func(message string)

// Pipeline runs keyword discovery against a Catalog.
type Pipeline struct {
	catalogs CatalogFactory
	now      func() time.Time
	onPage   func(page int)
}

func NewPipeline(catalogs CatalogFactory) *Pipeline {
	return &Pipeline{catalogs: catalogs, now: time.Now}
}

// OnPage registers fn to be called after every successful search page.
func (p *Pipeline) OnPage(fn func(page int)) {
	p.onPage = fn
}

// Run searches params.Keyword page by page and returns at most
// params.TargetCount items that pass every filter and are not in excluded.
// Finding fewer items than requested is not an error. Any API failure aborts
// the run and no items are returned.
func (p *Pipeline) Run(ctx context.Context, params models.SearchParams, excluded map[string]struct{}, progress ProgressFunc) ([]models.DiscoveredItem, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if params.TargetCount < 1 {
		return nil, fmt.Errorf("target count must be positive, got %d", params.TargetCount)
	}

	catalog, err := p.catalogs(ctx, params.APIKey)
	if err != nil {
		return nil, err
	}

	progress(fmt.Sprintf("Starting analysis with '%s' keyword... (Order: %s)", params.Keyword, params.Order))

	var (
		found     []models.DiscoveredItem
		seen      = make(map[string]struct{})
		pageToken string
	)

	for page := 1; page <= MaxPages && len(found) < params.TargetCount; page++ {
		progress(fmt.Sprintf("[Page %d] Searching...", page))

		result, err := catalog.Search(ctx, params.Keyword, params.Order, pageToken)
		if err != nil {
			return nil, err
		}
		if p.onPage != nil {
			p.onPage(page)
		}

		candidates := make([]string, 0, len(result.VideoIDs))
		for _, id := range result.VideoIDs {
			if _, ok := excluded[id]; ok {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, id)
		}

		log.Debug().
			Int("page", page).
			Int("returned", len(result.VideoIDs)).
			Int("candidates", len(candidates)).
			Msg("Search page filtered")

		if len(candidates) > 0 {
			passed, err := p.analyzePage(ctx, catalog, params, candidates, params.TargetCount-len(found), progress)
			if err != nil {
				return nil, err
			}
			found = append(found, passed...)
		}

		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	return found, nil
}

// analyzePage fetches details for candidates and returns up to limit items
// that pass the filters, in the order the details call returned them.
func (p *Pipeline) analyzePage(ctx context.Context, catalog Catalog, params models.SearchParams, candidates []string, limit int, progress ProgressFunc) ([]models.DiscoveredItem, error) {
	records, err := catalog.Videos(ctx, candidates)
	if err != nil {
		return nil, err
	}

	var channelIDs []string
	channelSeen := make(map[string]struct{})
	for _, rec := range records {
		if rec.ChannelID == "" {
			continue
		}
		if _, ok := channelSeen[rec.ChannelID]; ok {
			continue
		}
		channelSeen[rec.ChannelID] = struct{}{}
		channelIDs = append(channelIDs, rec.ChannelID)
	}

	subscribers := map[string]int64{}
	if len(channelIDs) > 0 {
		subscribers, err = catalog.ChannelSubscribers(ctx, channelIDs)
		if err != nil {
			return nil, err
		}
	}

	var passed []models.DiscoveredItem
	for _, rec := range records {
		item, ok := p.toItem(rec, subscribers)
		if !ok {
			log.Debug().Str("video_id", rec.ID).Msg("Skipping video with incomplete metadata")
			continue
		}
		if !PassesFilters(item, params) {
			continue
		}

		item.SearchKeyword = params.Keyword
		passed = append(passed, item)
		progress(fmt.Sprintf("-> Filter passed! '%s'", truncate(item.Title, 30)))

		if len(passed) >= limit {
			break
		}
	}
	return passed, nil
}

// toItem derives a DiscoveredItem from raw metadata. It reports false when
// the channel id, publish time or duration is missing or unparseable.
func (p *Pipeline) toItem(rec youtube.VideoRecord, subscribers map[string]int64) (models.DiscoveredItem, bool) {
	if rec.ChannelID == "" || rec.PublishedAt == "" || rec.Duration == "" {
		return models.DiscoveredItem{}, false
	}

	published, err := time.Parse(time.RFC3339, rec.PublishedAt)
	if err != nil {
		return models.DiscoveredItem{}, false
	}
	duration, ok := youtube.ParseDurationSeconds(rec.Duration)
	if !ok {
		return models.DiscoveredItem{}, false
	}

	title := rec.Title
	if title == "" {
		title = "No Title"
	}
	channel := rec.ChannelTitle
	if channel == "" {
		channel = "No Channel"
	}

	return models.DiscoveredItem{
		ID:              rec.ID,
		Title:           title,
		Channel:         channel,
		UploadDate:      published.UTC().Format("2006-01-02"),
		Views:           rec.ViewCount,
		Subscribers:     subscribers[rec.ChannelID],
		DurationSeconds: duration,
		ViewVelocity:    ViewVelocity(rec.ViewCount, published, p.now()),
		ThumbnailURL:    rec.ThumbnailURL,
		URL:             youtube.WatchURL(rec.ID),
	}, true
}

// DaysSinceUpload returns the whole days between published and now, never
// less than one.
func DaysSinceUpload(published, now time.Time) int64 {
	days := int64(now.Sub(published) / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}

// ViewVelocity is views per day since upload.
func ViewVelocity(views int64, published, now time.Time) float64 {
	return float64(views) / float64(DaysSinceUpload(published, now))
}

// PassesFilters applies the search filters in order: minimum views, minimum
// duration, maximum duration (when positive) and maximum subscribers (when
// not negative).
func PassesFilters(item models.DiscoveredItem, params models.SearchParams) bool {
	if item.Views < params.MinViews {
		return false
	}
	if item.DurationSeconds < params.MinDurationSeconds {
		return false
	}
	if params.MaxDurationSeconds > 0 && item.DurationSeconds > params.MaxDurationSeconds {
		return false
	}
	if params.MaxSubscribers >= 0 && item.Subscribers > params.MaxSubscribers {
		return false
	}
	return true
}

// Rank sorts items by descending view velocity. Ties keep their order.
func Rank(items []models.DiscoveredItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ViewVelocity > items[j].ViewVelocity
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
