package service

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/timmy/newsrec/internal/domain"
	"github.com/timmy/newsrec/internal/source"
)

const (
	maxTitleRunes   = 1000
	maxSummaryRunes = 2000
	maxTags         = 10
)

var nonIdentChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// NormalizerConfig controls truncation and the clock used for missing dates.
type NormalizerConfig struct {
	MaxContentChars   int
	MaxEmbeddingChars int
	Now               func() time.Time
}

// Normalizer turns raw feed entries into articles with deterministic ids.
type Normalizer struct {
	maxContent   int
	maxEmbedding int
	now          func() time.Time
}

// NewNormalizer creates a Normalizer. Zero limits mean no truncation.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		maxContent:   cfg.MaxContentChars,
		maxEmbedding: cfg.MaxEmbeddingChars,
		now:          now,
	}
}

// Normalize validates entry and builds the article for it.
// Returns domain.ErrMalformedEntry when the entry has neither title nor content.
func (n *Normalizer) Normalize(entry source.RawEntry, sourceLabel string) (*domain.Article, error) {
	title := truncateRunes(strings.TrimSpace(entry.Title), maxTitleRunes)
	content := firstNonEmpty(entry.Content, entry.Description, entry.Summary)

	if title == "" && content == "" {
		return nil, fmt.Errorf("%w: entry %q from %s", domain.ErrMalformedEntry, entry.Link, sourceLabel)
	}

	content = truncateRunes(content, n.maxContent)
	link := strings.TrimSpace(entry.Link)
	prefix := SourcePrefix(sourceLabel)
	now := n.now().UTC()

	summary := strings.TrimSpace(entry.Summary)
	if summary == "" {
		if desc := strings.TrimSpace(entry.Description); desc != content {
			summary = desc
		}
	}

	article := &domain.Article{
		ID:          ArticleID(prefix, title, link),
		Title:       title,
		Content:     content,
		Summary:     truncateRunes(summary, maxSummaryRunes),
		URL:         link,
		Source:      prefix,
		FeedURL:     entry.FeedURL,
		Author:      strings.TrimSpace(entry.Author),
		PublishedAt: n.publishedAt(entry, now),
		Tags:        normalizeTags(entry.Categories),
		Status:      domain.ArticleStatusPending,
		FetchedAt:   now,
	}
	if category := strings.TrimSpace(entry.Category); category != "" {
		article.Categories = domain.StringArray{category}
	}
	article.ContentHash = hashHex(n.EmbeddingText(article))

	return article, nil
}

// publishedAt prefers the source's parsed date, then a lenient parse of the
// raw string, then the ingestion time.
func (n *Normalizer) publishedAt(entry source.RawEntry, now time.Time) time.Time {
	if entry.Published != nil && !entry.Published.IsZero() {
		return entry.Published.UTC()
	}
	if raw := strings.TrimSpace(entry.PublishedRaw); raw != "" {
		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return now
}

// EmbeddingText is the text sent to the embedding provider for an article.
func (n *Normalizer) EmbeddingText(a *domain.Article) string {
	text := fmt.Sprintf("Title: %s\n\nSummary: %s\n\nContent: %s", a.Title, a.Summary, a.Content)
	return truncateRunes(text, n.maxEmbedding)
}

// Dedupe collapses articles sharing an id. The later entry wins but keeps the
// position of the first occurrence. Returns the survivors and how many were dropped.
func Dedupe(articles []*domain.Article) ([]*domain.Article, int) {
	index := make(map[string]int, len(articles))
	out := make([]*domain.Article, 0, len(articles))
	for _, a := range articles {
		if i, ok := index[a.ID]; ok {
			out[i] = a
			continue
		}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	return out, len(articles) - len(out)
}

// SourcePrefix derives the id prefix from a feed URL or file name.
func SourcePrefix(label string) string {
	label = strings.TrimSpace(label)
	var name string
	if u, err := url.Parse(label); err == nil && u.Host != "" {
		name = strings.ToLower(u.Hostname())
		name = strings.ReplaceAll(name, "www.", "")
		name = strings.ReplaceAll(name, ".com", "")
		name = strings.ReplaceAll(name, ".", "_")
	} else {
		name = filepath.Base(strings.TrimPrefix(label, "file://"))
		name = strings.TrimSuffix(strings.TrimSuffix(name, ".xml"), ".rss")
		if name == "." || name == "/" {
			name = ""
		}
	}

	name = nonIdentChars.ReplaceAllString(name, "_")
	if name == "" {
		return "unknown"
	}
	return name
}

// ArticleID is prefix + "_" + md5(title + link), with the prefix cut so the
// whole id fits domain.MaxArticleIDLength.
func ArticleID(prefix, title, link string) string {
	hash := hashHex(title + link)
	maxPrefix := domain.MaxArticleIDLength - len(hash) - 1
	if len(prefix) > maxPrefix {
		prefix = prefix[:maxPrefix]
	}
	return prefix + "_" + hash
}

func hashHex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// truncateRunes cuts s to at most limit runes. limit <= 0 disables the cut.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func normalizeTags(tags []string) domain.StringArray {
	seen := make(map[string]struct{}, len(tags))
	out := make(domain.StringArray, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
		if len(out) == maxTags {
			break
		}
	}
	return out
}
