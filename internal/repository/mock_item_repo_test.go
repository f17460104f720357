package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/repository"
)

func storedItem(id, community string, score int, tags []string, summary string, at time.Time) *domain.StoredItem {
	env := domain.NewEnvelope(domain.Envelope{
		ItemID:       id,
		Community:    community,
		Title:        "Original title",
		CreatedAt:    at.Add(-time.Hour),
		Score:        score,
		CommentCount: 3,
		RenderedText: "x",
	})
	return domain.NewStoredItem(env, domain.Enrichment{Tags: tags, Summary: summary}, at)
}

func TestMockItemRepository_UpsertIsIdempotent(t *testing.T) {
	repo := repository.NewMockItemRepository()
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

	if err := repo.Upsert(ctx, storedItem("t3_a", "golang", 10, []string{"go"}, "v1", at)); err != nil {
		t.Fatal(err)
	}
	second := storedItem("t3_a", "golang", 500, []string{"go", "news"}, "v2", at.Add(time.Hour))
	second.Title = "edited"
	if err := repo.Upsert(ctx, second); err != nil {
		t.Fatal(err)
	}

	if repo.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", repo.Len())
	}
	got, _ := repo.Get("t3_a")
	if got.Title != "Original title" || got.Score != 10 {
		t.Fatalf("content fields were overwritten: %+v", got)
	}
	if *got.Summary != "v2" || len(got.Tags) != 2 || !got.ProcessedAt.Equal(at.Add(time.Hour)) {
		t.Fatalf("enrichment fields not updated: %+v", got)
	}
}

func TestMockItemRepository_EmptyStore(t *testing.T) {
	repo := repository.NewMockItemRepository()
	ctx := context.Background()
	day := time.Now()

	latest, err := repo.LatestProcessedAt(ctx)
	if err != nil || latest != nil {
		t.Fatalf("expected nil latest, got %v err=%v", latest, err)
	}
	digests, err := repo.ItemsForDate(ctx, day)
	if err != nil || len(digests) != 0 {
		t.Fatalf("expected empty set, got %v err=%v", digests, err)
	}
	stats, err := repo.AggregateStats(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ItemCount != 0 || stats.CommunityCount != 0 || stats.AvgScore != 0 || len(stats.Communities) != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestMockItemRepository_ItemsForDateGrouping(t *testing.T) {
	repo := repository.NewMockItemRepository()
	ctx := context.Background()
	day := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	items := []*domain.StoredItem{
		storedItem("1", "rust", 5, []string{"b", "a"}, "s", day),
		storedItem("2", "golang", 1, []string{"go"}, "s", day),
		storedItem("3", "golang", 9, []string{"go", "tools"}, "s", day),
		storedItem("4", "python", 7, nil, "s", day),
		storedItem("5", "python", 3, nil, "s", day.Add(-24*time.Hour)),
		storedItem("6", "zig", 1, nil, "s", day.Add(13*time.Hour)),
	}
	for _, it := range items {
		if err := repo.Upsert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	digests, err := repo.ItemsForDate(ctx, day)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, d := range digests {
		names = append(names, d.Community)
	}
	want := []string{"golang", "python", "rust"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}

	golang := digests[0]
	if golang.ItemCount != 2 || golang.Items[0].Score != 9 {
		t.Fatalf("expected golang sorted by score, got %+v", golang)
	}
	if len(golang.UniqueTags) != 2 || golang.UniqueTags[0] != "go" || golang.UniqueTags[1] != "tools" {
		t.Fatalf("expected sorted distinct tags, got %v", golang.UniqueTags)
	}
	if rust := digests[2]; rust.UniqueTags[0] != "a" {
		t.Fatalf("expected sorted tags, got %v", rust.UniqueTags)
	}

	stats, err := repo.AggregateStats(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if stats.ItemCount != 4 || stats.CommunityCount != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.AvgScore != 5.5 {
		t.Fatalf("expected avg score 5.5, got %v", stats.AvgScore)
	}
}
