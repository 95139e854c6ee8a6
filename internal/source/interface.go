package source

import (
	"context"
	"time"
)

// RawEntry is one feed item as delivered by a source, before normalization.
// Text fields are already stripped of markup.
type RawEntry struct {
	GUID         string
	Title        string
	Link         string
	Content      string
	Description  string
	Summary      string
	Author       string
	Published    *time.Time // parsed by the source when it could
	PublishedRaw string     // original date string, for a second parse attempt
	Categories   []string   // item categories from the feed, used as tags
	Category     string     // configured category of the feed
	FeedURL      string
}

// Source defines the interface for article sources.
type Source interface {
	// GetSourceID returns the feed location (URL or file path); it also
	// seeds the article id prefix.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// Category is the configured category every entry of this source belongs to.
	Category() string

	// Fetch returns at most limit entries, newest first as the feed orders them.
	// limit <= 0 means no limit.
	Fetch(ctx context.Context, limit int) ([]RawEntry, error)
}
