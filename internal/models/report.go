package models

import "time"

// KeywordReport is the outcome of one keyword in a scheduled run.
type KeywordReport struct {
	Keyword string           `json:"keyword"`
	Items   []DiscoveredItem `json:"items"`
	Error   string           `json:"error,omitempty"`
}

// DigestReport collects the ranked results of a scheduled run for email delivery.
type DigestReport struct {
	Date     time.Time       `json:"date"`
	Keywords []KeywordReport `json:"keywords"`
}

// TotalItems counts the items found across every keyword.
func (r *DigestReport) TotalItems() int {
	n := 0
	for _, k := range r.Keywords {
		n += len(k.Items)
	}
	return n
}
