package models

import "time"

// Search orders accepted by the remote catalog.
const (
	OrderRelevance = "relevance"
	OrderDate      = "date"
	OrderViewCount = "viewCount"
)

// DiscoveredItem is one analyzed video that passed every search filter.
type DiscoveredItem struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Channel         string    `json:"channel"`
	UploadDate      string    `json:"upload_date"` // 2006-01-02
	Views           int64     `json:"views"`
	Subscribers     int64     `json:"subscribers"`
	DurationSeconds int       `json:"duration_seconds"`
	ViewVelocity    float64   `json:"view_velocity"`
	RetrievedAt     time.Time `json:"retrieved_at"`
	SearchKeyword   string    `json:"search_keyword"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	URL             string    `json:"url"`
}

// SearchParams drives a single discovery run.
type SearchParams struct {
	APIKey             string `json:"-"`
	Keyword            string `json:"keyword"`
	Order              string `json:"order"`
	MaxSubscribers     int64  `json:"max_subscribers"` // negative disables the filter
	MinViews           int64  `json:"min_views"`
	MinDurationSeconds int    `json:"min_duration_seconds"`
	MaxDurationSeconds int    `json:"max_duration_seconds"` // zero or negative disables the filter
	TargetCount        int    `json:"target_count"`
}

// ValidOrder reports whether order is one of the supported search orders.
func ValidOrder(order string) bool {
	switch order {
	case OrderRelevance, OrderDate, OrderViewCount:
		return true
	}
	return false
}

// APIKey is a named YouTube Data API key.
type APIKey struct {
	Alias string `json:"alias"`
	Key   string `json:"key"`
}
