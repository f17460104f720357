package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/repository"
)

// Enqueuer runs one fetch and publish batch.
type Enqueuer interface {
	Enqueue(ctx context.Context, req domain.UpdateRequest) (domain.UpdateResult, error)
}

// DepthReader reports the work queue's depth.
type DepthReader interface {
	Depth(ctx context.Context) (uint64, error)
}

// DigestService coordinates the producer, the queue and the result store.
// HTTP handlers and the scheduler depend on this service, not on each other.
type DigestService struct {
	repo     repository.ItemRepository
	producer Enqueuer
	queue    DepthReader
	logger   *zap.Logger
	onDepth  func(uint64)
}

// NewDigestService wires the service. onDepth receives every depth reading
// and may be nil.
func NewDigestService(
	repo repository.ItemRepository,
	producer Enqueuer,
	queue DepthReader,
	logger *zap.Logger,
	onDepth func(uint64),
) *DigestService {
	if onDepth == nil {
		onDepth = func(uint64) {}
	}
	return &DigestService{repo: repo, producer: producer, queue: queue, logger: logger, onDepth: onDepth}
}

// Update validates the request and runs the batch synchronously.
func (s *DigestService) Update(ctx context.Context, req domain.UpdateRequest) (domain.UpdateResult, error) {
	if err := req.Validate(); err != nil {
		return domain.UpdateResult{}, err
	}
	return s.producer.Enqueue(ctx, req)
}

// Summary reports stats and per-community detail for the calendar day of the
// most recent processing. It returns domain.ErrNotFound when nothing has been
// processed yet.
func (s *DigestService) Summary(ctx context.Context) (*domain.Summary, error) {
	latest, err := s.repo.LatestProcessedAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest processing time: %w", err)
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}

	stats, err := s.repo.AggregateStats(ctx, *latest)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	digests, err := s.repo.ItemsForDate(ctx, *latest)
	if err != nil {
		return nil, fmt.Errorf("items for date: %w", err)
	}
	if digests == nil {
		digests = []domain.CommunityDigest{}
	}

	day, _ := domain.DayBounds(*latest)
	return &domain.Summary{
		Date:           day.Format(time.DateOnly),
		LatestUpdate:   latest.UTC().Format(time.RFC3339),
		TotalProcessed: stats.ItemCount,
		Stats:          stats,
		Communities:    digests,
	}, nil
}

// QueueDepth returns the number of envelopes waiting or in flight and
// records it on the depth gauge.
func (s *DigestService) QueueDepth(ctx context.Context) (uint64, error) {
	n, err := s.queue.Depth(ctx)
	if err != nil {
		return 0, err
	}
	s.onDepth(n)
	return n, nil
}
