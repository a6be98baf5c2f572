package youtube

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// MaxPageSize is the largest page the search endpoint returns.
const MaxPageSize = 50

// SearchPage is one page of keyword search results.
type SearchPage struct {
	VideoIDs      []string
	NextPageToken string
}

// VideoRecord carries the raw per-video fields the discovery pipeline needs.
// Empty strings mean the API omitted the field.
type VideoRecord struct {
	ID           string
	Title        string
	ChannelID    string
	ChannelTitle string
	PublishedAt  string
	Duration     string
	ViewCount    int64
	ThumbnailURL string
}

// Client wraps the YouTube Data API v3 with API-key authentication.
type Client struct {
	service *youtube.Service
	limiter *rate.Limiter
}

// NewClient creates a client authenticated with apiKey. requestsPerSecond
// paces outgoing calls; zero or less disables pacing. Extra options are
// appended after the API key, which lets tests point at a local server.
func NewClient(ctx context.Context, apiKey string, requestsPerSecond float64, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}

	return &Client{service: service, limiter: limiter}, nil
}

// Search returns one page of video ids matching keyword, sorted by order.
func (c *Client) Search(ctx context.Context, keyword, order, pageToken string) (*SearchPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	call := c.service.Search.List([]string{"snippet"}).
		Q(keyword).
		Type("video").
		Order(order).
		MaxResults(MaxPageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search %q failed: %w", keyword, err)
	}

	page := &SearchPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		page.VideoIDs = append(page.VideoIDs, item.Id.VideoId)
	}

	log.Debug().
		Str("keyword", keyword).
		Int("ids", len(page.VideoIDs)).
		Bool("has_next", page.NextPageToken != "").
		Msg("Search page fetched")

	return page, nil
}

// Videos fetches snippet, statistics and content details for ids in one call.
// Items are returned in API order.
func (c *Client) Videos(ctx context.Context, ids []string) ([]VideoRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get video details: %w", err)
	}

	records := make([]VideoRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		rec := VideoRecord{ID: item.Id}
		if s := item.Snippet; s != nil {
			rec.Title = s.Title
			rec.ChannelID = s.ChannelId
			rec.ChannelTitle = s.ChannelTitle
			rec.PublishedAt = s.PublishedAt
			if s.Thumbnails != nil && s.Thumbnails.High != nil {
				rec.ThumbnailURL = s.Thumbnails.High.Url
			}
		}
		if item.Statistics != nil {
			rec.ViewCount = int64(item.Statistics.ViewCount)
		}
		if item.ContentDetails != nil {
			rec.Duration = item.ContentDetails.Duration
		}
		records = append(records, rec)
	}
	return records, nil
}

// ChannelSubscribers returns subscriber counts keyed by channel id. Channels
// the API does not return, or that hide their count, map to zero.
func (c *Client) ChannelSubscribers(ctx context.Context, ids []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.service.Channels.List([]string{"statistics"}).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel statistics: %w", err)
	}

	for _, ch := range resp.Items {
		if ch.Statistics == nil {
			counts[ch.Id] = 0
			continue
		}
		counts[ch.Id] = int64(ch.Statistics.SubscriberCount)
	}
	return counts, nil
}

var durationPattern = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDurationSeconds converts an ISO 8601 duration such as "PT1M30S",
// "P1DT2H" or "P1W2D" into seconds. The second result is false for malformed input.
func ParseDurationSeconds(duration string) (int, bool) {
	matches := durationPattern.FindStringSubmatch(duration)
	if matches == nil || duration == "P" || strings.HasSuffix(duration, "T") {
		return 0, false
	}

	units := []int{604800, 86400, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if matches[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}

// WatchURL returns the public watch page for a video id.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
