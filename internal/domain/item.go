package domain

import (
	"strings"
	"time"
)

// MaxTags caps how many tags one enrichment may attach to an item.
const MaxTags = 7

// Enrichment is the language-model output attached to a stored item.
type Enrichment struct {
	Tags    []string `json:"tags"`
	Summary string   `json:"discussion_summary"`
}

// Normalize trims tags, drops empty ones and caps the list at MaxTags.
func (e Enrichment) Normalize() Enrichment {
	tags := make([]string, 0, len(e.Tags))
	for _, t := range e.Tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		tags = append(tags, t)
		if len(tags) == MaxTags {
			break
		}
	}
	return Enrichment{Tags: tags, Summary: strings.TrimSpace(e.Summary)}
}

// StoredItem is the persisted record: the envelope's content fields, which are
// written once, plus enrichment fields that each successful reprocessing
// overwrites.
type StoredItem struct {
	ItemID       string     `json:"item_id"`
	Community    string     `json:"community"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Author       string     `json:"author"`
	CreatedAt    time.Time  `json:"created_at"`
	URL          string     `json:"url"`
	Score        int        `json:"score"`
	CommentCount int        `json:"comment_count"`
	Tags         []string   `json:"tags"`
	Summary      *string    `json:"summary,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// NewStoredItem combines an envelope with its enrichment result.
func NewStoredItem(env Envelope, enr Enrichment, processedAt time.Time) *StoredItem {
	summary := enr.Summary
	at := processedAt.UTC()
	return &StoredItem{
		ItemID:       env.ItemID,
		Community:    env.Community,
		Title:        env.Title,
		Body:         env.Body,
		Author:       env.Author,
		CreatedAt:    env.CreatedAt.UTC(),
		URL:          env.URL,
		Score:        env.Score,
		CommentCount: env.CommentCount,
		Tags:         enr.Tags,
		Summary:      &summary,
		ProcessedAt:  &at,
	}
}

// ItemDigest is the per-item line of a community summary.
type ItemDigest struct {
	Title        string `json:"title"`
	Summary      string `json:"discussion_summary"`
	Score        int    `json:"score"`
	CommentCount int    `json:"num_comments"`
}

// CommunityDigest groups the items of one community processed on a given day.
type CommunityDigest struct {
	Community  string       `json:"community"`
	ItemCount  int          `json:"post_count"`
	UniqueTags []string     `json:"unique_tags"`
	Items      []ItemDigest `json:"posts"`
}

// DailyStats aggregates everything processed on one calendar day.
type DailyStats struct {
	CommunityCount  int      `json:"total_communities"`
	ItemCount       int      `json:"total_posts"`
	AvgScore        float64  `json:"avg_score"`
	AvgCommentCount float64  `json:"avg_comments"`
	Communities     []string `json:"communities"`
}

// DayBounds returns the UTC half-open interval [start, end) of t's calendar date.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}
