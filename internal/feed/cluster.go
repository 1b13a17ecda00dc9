package feed

import "time"

// ResolvedItem is one link of a cluster after redirect resolution.
// DecodedURL stays null and Skipped is set when resolution failed.
type ResolvedItem struct {
	Title       string  `json:"title"`
	OriginalURL string  `json:"original_url"`
	DecodedURL  *string `json:"decoded_url"`
	Source      string  `json:"source,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`
	Skipped     bool    `json:"skipped"`
}

// ClusterRecord is the wire format for one decoded feed entry: the main
// item plus its related coverage. Related items inherit the cluster GUID.
type ClusterRecord struct {
	GUID        string         `json:"guid,omitempty"`
	PublishedAt *time.Time     `json:"pubDate,omitempty"`
	Main        ResolvedItem   `json:"main"`
	Related     []ResolvedItem `json:"related"`
}

// StatusEvent is a progress line on the batch stream, distinguished from
// cluster records by its "event" key.
type StatusEvent struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

func NewStatus(message string) StatusEvent {
	return StatusEvent{Event: "status", Message: message}
}
