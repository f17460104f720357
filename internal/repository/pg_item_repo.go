package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ricirt/community-digest/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type pgItemRepository struct {
	pool *pgxpool.Pool
}

// NewPgItemRepository returns an ItemRepository backed by PostgreSQL.
func NewPgItemRepository(pool *pgxpool.Pool) ItemRepository {
	return &pgItemRepository{pool: pool}
}

func (r *pgItemRepository) Upsert(ctx context.Context, it *domain.StoredItem) error {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}

	query, args, err := psql.Insert("items").
		Columns("item_id", "community", "title", "body", "author", "created_at",
			"url", "score", "comment_count", "tags", "summary", "processed_at").
		Values(it.ItemID, it.Community, it.Title, it.Body, it.Author, it.CreatedAt,
			it.URL, it.Score, it.CommentCount, tags, it.Summary, it.ProcessedAt).
		Suffix(`ON CONFLICT (item_id) DO UPDATE SET
			tags = EXCLUDED.tags,
			summary = EXCLUDED.summary,
			processed_at = EXCLUDED.processed_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ItemID, err)
	}
	return nil
}

func (r *pgItemRepository) LatestProcessedAt(ctx context.Context) (*time.Time, error) {
	query, args, err := psql.Select("MAX(processed_at)").From("items").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest query: %w", err)
	}

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest processed_at: %w", err)
	}
	if latest != nil {
		t := latest.UTC()
		latest = &t
	}
	return latest, nil
}

func (r *pgItemRepository) ItemsForDate(ctx context.Context, day time.Time) ([]domain.CommunityDigest, error) {
	start, end := domain.DayBounds(day)
	query, args, err := psql.
		Select("community", "title", "summary", "score", "comment_count", "tags").
		From("items").
		Where(sq.GtOrEq{"processed_at": start}).
		Where(sq.Lt{"processed_at": end}).
		OrderBy("community", "score DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("items for date: %w", err)
	}
	defer rows.Close()

	var items []*domain.StoredItem
	for rows.Next() {
		var it domain.StoredItem
		if err := rows.Scan(&it.Community, &it.Title, &it.Summary, &it.Score, &it.CommentCount, &it.Tags); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("items for date: %w", err)
	}
	return buildDigests(items), nil
}

func (r *pgItemRepository) AggregateStats(ctx context.Context, day time.Time) (domain.DailyStats, error) {
	start, end := domain.DayBounds(day)
	query, args, err := psql.
		Select(
			"COUNT(DISTINCT community)",
			"COUNT(*)",
			"COALESCE(AVG(score), 0)::float8",
			"COALESCE(AVG(comment_count), 0)::float8",
			"COALESCE(ARRAY_AGG(DISTINCT community ORDER BY community), '{}')",
		).
		From("items").
		Where(sq.GtOrEq{"processed_at": start}).
		Where(sq.Lt{"processed_at": end}).
		ToSql()
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("build stats query: %w", err)
	}

	var s domain.DailyStats
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&s.CommunityCount, &s.ItemCount, &s.AvgScore, &s.AvgCommentCount, &s.Communities,
	)
	if err != nil {
		return domain.DailyStats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return s, nil
}
