package repository

import (
	"context"
	"sort"
	"time"

	"github.com/ricirt/community-digest/internal/domain"
)

// ItemRepository defines persistence for enriched items.
// The pgx implementation is in pg_item_repo.go.
// Tests use a hand-written mock (mock_item_repo.go).
type ItemRepository interface {
	// Upsert inserts the item or, when item_id already exists, overwrites only
	// its enrichment fields and processed_at.
	Upsert(ctx context.Context, item *domain.StoredItem) error

	// LatestProcessedAt returns the newest processed_at, or nil for an empty store.
	LatestProcessedAt(ctx context.Context) (*time.Time, error)

	// ItemsForDate groups the items processed on day's UTC calendar date.
	ItemsForDate(ctx context.Context, day time.Time) ([]domain.CommunityDigest, error)

	// AggregateStats summarises the items processed on day's UTC calendar date.
	AggregateStats(ctx context.Context, day time.Time) (domain.DailyStats, error)
}

// buildDigests groups items by community. Groups are ordered by item count
// descending then name; items inside a group by score descending.
func buildDigests(items []*domain.StoredItem) []domain.CommunityDigest {
	type group struct {
		digest domain.CommunityDigest
		tags   map[string]struct{}
	}
	groups := make(map[string]*group)

	for _, it := range items {
		g, ok := groups[it.Community]
		if !ok {
			g = &group{
				digest: domain.CommunityDigest{Community: it.Community},
				tags:   make(map[string]struct{}),
			}
			groups[it.Community] = g
		}
		for _, t := range it.Tags {
			g.tags[t] = struct{}{}
		}
		summary := ""
		if it.Summary != nil {
			summary = *it.Summary
		}
		g.digest.Items = append(g.digest.Items, domain.ItemDigest{
			Title:        it.Title,
			Summary:      summary,
			Score:        it.Score,
			CommentCount: it.CommentCount,
		})
	}

	out := make([]domain.CommunityDigest, 0, len(groups))
	for _, g := range groups {
		g.digest.ItemCount = len(g.digest.Items)
		g.digest.UniqueTags = make([]string, 0, len(g.tags))
		for t := range g.tags {
			g.digest.UniqueTags = append(g.digest.UniqueTags, t)
		}
		sort.Strings(g.digest.UniqueTags)
		sort.SliceStable(g.digest.Items, func(i, j int) bool {
			return g.digest.Items[i].Score > g.digest.Items[j].Score
		})
		out = append(out, g.digest)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemCount != out[j].ItemCount {
			return out[i].ItemCount > out[j].ItemCount
		}
		return out[i].Community < out[j].Community
	})
	return out
}
