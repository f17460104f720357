package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ricirt/community-digest/internal/domain"
)

// MockItemRepository is a hand-written, in-memory implementation of
// ItemRepository used in unit tests. Upsert follows the same conflict rule as
// the SQL store: content fields are written once, enrichment is overwritten.
type MockItemRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.StoredItem

	// Optional error overrides for failure paths.
	UpsertErr error
	QueryErr  error

	// UpsertCalls counts every Upsert attempt, failed ones included.
	UpsertCalls int
}

func NewMockItemRepository() *MockItemRepository {
	return &MockItemRepository{items: make(map[string]*domain.StoredItem)}
}

func (m *MockItemRepository) Upsert(_ context.Context, it *domain.StoredItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	if existing, ok := m.items[it.ItemID]; ok {
		existing.Tags = append([]string(nil), it.Tags...)
		existing.Summary = it.Summary
		existing.ProcessedAt = it.ProcessedAt
		return nil
	}
	clone := *it
	clone.Tags = append([]string(nil), it.Tags...)
	m.items[it.ItemID] = &clone
	return nil
}

// Get returns a copy of the stored item for assertions.
func (m *MockItemRepository) Get(itemID string) (*domain.StoredItem, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[itemID]
	if !ok {
		return nil, false
	}
	clone := *it
	return &clone, true
}

// Len returns the number of stored rows.
func (m *MockItemRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MockItemRepository) LatestProcessedAt(_ context.Context) (*time.Time, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *time.Time
	for _, it := range m.items {
		if it.ProcessedAt != nil && (latest == nil || it.ProcessedAt.After(*latest)) {
			t := *it.ProcessedAt
			latest = &t
		}
	}
	return latest, nil
}

func (m *MockItemRepository) ItemsForDate(_ context.Context, day time.Time) ([]domain.CommunityDigest, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return buildDigests(m.onDay(day)), nil
}

func (m *MockItemRepository) AggregateStats(_ context.Context, day time.Time) (domain.DailyStats, error) {
	if m.QueryErr != nil {
		return domain.DailyStats{}, m.QueryErr
	}
	items := m.onDay(day)

	s := domain.DailyStats{Communities: []string{}}
	if len(items) == 0 {
		return s, nil
	}

	seen := make(map[string]struct{})
	var score, comments int
	for _, it := range items {
		score += it.Score
		comments += it.CommentCount
		if _, ok := seen[it.Community]; !ok {
			seen[it.Community] = struct{}{}
			s.Communities = append(s.Communities, it.Community)
		}
	}
	sort.Strings(s.Communities)
	s.CommunityCount = len(s.Communities)
	s.ItemCount = len(items)
	s.AvgScore = float64(score) / float64(len(items))
	s.AvgCommentCount = float64(comments) / float64(len(items))
	return s, nil
}

func (m *MockItemRepository) onDay(day time.Time) []*domain.StoredItem {
	start, end := domain.DayBounds(day)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*domain.StoredItem
	for _, it := range m.items {
		if it.ProcessedAt == nil || it.ProcessedAt.Before(start) || !it.ProcessedAt.Before(end) {
			continue
		}
		clone := *it
		out = append(out, &clone)
	}
	return out
}

var _ ItemRepository = (*MockItemRepository)(nil)
