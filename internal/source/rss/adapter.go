package rss

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"
	"github.com/timmy/newsrec/internal/logger"
	"github.com/timmy/newsrec/internal/source"
)

// Config holds settings shared by all RSS adapters.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Adapter implements source.Source for one RSS/Atom/JSON feed, remote or on disk.
type Adapter struct {
	location string
	category string
	client   *resty.Client
	parser   *gofeed.Parser
}

// NewAdapter creates an adapter for location, which is either an http(s)
// URL or a local file path.
func NewAdapter(location, category string, cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Adapter{
		location: location,
		category: category,
		client:   client,
		parser:   gofeed.NewParser(),
	}
}

// NewAdapters builds one adapter per feed in categories.
func NewAdapters(categories map[string][]string, cfg Config) []source.Source {
	var sources []source.Source
	for category, feeds := range categories {
		for _, feed := range feeds {
			sources = append(sources, NewAdapter(feed, category, cfg))
		}
	}
	return sources
}

// GetSourceID returns the feed location.
func (a *Adapter) GetSourceID() string {
	return a.location
}

// GetDisplayName returns the feed host, or the file name for local feeds.
func (a *Adapter) GetDisplayName() string {
	if u, err := url.Parse(a.location); err == nil && u.Host != "" {
		return u.Host
	}
	return filepath.Base(a.location)
}

// Category returns the configured category.
func (a *Adapter) Category() string {
	return a.category
}

// Fetch downloads (or reads) and parses the feed.
func (a *Adapter) Fetch(ctx context.Context, limit int) ([]source.RawEntry, error) {
	raw, err := a.read(ctx)
	if err != nil {
		return nil, err
	}

	feed, err := a.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed %s: %w", a.location, err)
	}

	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	entries := make([]source.RawEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, a.toEntry(item))
	}

	logger.With(logger.Fields{
		logger.FieldSource: a.location,
		logger.FieldCount:  len(entries),
	}).Debug(ctx, "[RSS] Parsed feed %q", feed.Title)

	return entries, nil
}

func (a *Adapter) read(ctx context.Context) ([]byte, error) {
	if !isRemote(a.location) {
		data, err := os.ReadFile(strings.TrimPrefix(a.location, "file://"))
		if err != nil {
			return nil, fmt.Errorf("failed to read feed file: %w", err)
		}
		return data, nil
	}

	resp, err := a.client.R().SetContext(ctx).Get(a.location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", a.location, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("feed %s returned status %d", a.location, resp.StatusCode())
	}
	return resp.Body(), nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func (a *Adapter) toEntry(item *gofeed.Item) source.RawEntry {
	entry := source.RawEntry{
		GUID:        item.GUID,
		Title:       CleanText(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Content:     CleanHTML(item.Content),
		Description: CleanHTML(item.Description),
		FeedURL:     a.location,
		Category:    a.category,
		Categories:  item.Categories,
	}

	if entry.Link == "" && len(item.Links) > 0 {
		entry.Link = strings.TrimSpace(item.Links[0])
	}

	if item.ITunesExt != nil {
		entry.Summary = CleanHTML(item.ITunesExt.Summary)
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		entry.Author = item.Authors[0].Name
	} else if item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0 {
		entry.Author = item.DublinCoreExt.Creator[0]
	}

	switch {
	case item.PublishedParsed != nil:
		entry.Published = item.PublishedParsed
		entry.PublishedRaw = item.Published
	case item.UpdatedParsed != nil:
		entry.Published = item.UpdatedParsed
		entry.PublishedRaw = item.Updated
	case item.Published != "":
		entry.PublishedRaw = item.Published
	default:
		entry.PublishedRaw = item.Updated
	}

	return entry
}
