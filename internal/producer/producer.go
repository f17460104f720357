// Package producer collects candidate items from the source, ranks them and
// places one envelope per survivor on the durable queue.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/render"
	"github.com/ricirt/community-digest/internal/source"
)

// Source is the community listing API.
type Source interface {
	HotPosts(ctx context.Context, community string, limit int) ([]source.Post, error)
	TopComments(ctx context.Context, p source.Post, limit int) ([]string, error)
}

// Publisher places one envelope on the queue.
type Publisher interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// Config bounds a single collection run.
type Config struct {
	// Candidates fetched per community.
	HotLimit int
	// Survivors kept per community after the window filter.
	ItemsPerCommunity int
	// Top-level comments included in the rendered text.
	TopComments int
}

// MetricHooks carries the metric callback functions injected by main.
type MetricHooks struct {
	OnPublished     func()
	OnPublishFailed func()
}

// Producer runs fetch, filter, rank, render and publish for one request.
type Producer struct {
	src      Source
	pub      Publisher
	renderer *render.Renderer
	cfg      Config
	logger   *zap.Logger
	hooks    MetricHooks
	now      func() time.Time
}

// Option customises a Producer.
type Option func(*Producer)

// WithClock replaces time.Now as the reference for the window filter.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) { p.now = now }
}

// New builds a Producer. Nil hooks are replaced with no-ops.
func New(src Source, pub Publisher, renderer *render.Renderer, cfg Config, logger *zap.Logger, hooks MetricHooks, opts ...Option) *Producer {
	if hooks.OnPublished == nil {
		hooks.OnPublished = func() {}
	}
	if hooks.OnPublishFailed == nil {
		hooks.OnPublishFailed = func() {}
	}
	p := &Producer{
		src:      src,
		pub:      pub,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Collect fetches every community and returns the survivors ordered by score,
// highest first. A community whose fetch fails is logged and skipped.
func (p *Producer) Collect(ctx context.Context, communities []string, window time.Duration) []source.Post {
	since := p.now().Add(-window)

	var all []source.Post
	for _, c := range communities {
		posts, err := p.src.HotPosts(ctx, c, p.cfg.HotLimit)
		if err != nil {
			p.logger.Error("failed to fetch community", zap.String("community", c), zap.Error(err))
			continue
		}
		all = append(all, topN(withinWindow(posts, since), p.cfg.ItemsPerCommunity)...)
	}

	sortByScore(all)
	return all
}

// Enqueue collects the request's communities and publishes one envelope per
// survivor. Publish failures are counted per item and never abort the batch.
// When nothing could be queued because the broker is unreachable, the result
// is returned together with an error wrapping domain.ErrBrokerUnavailable.
func (p *Producer) Enqueue(ctx context.Context, req domain.UpdateRequest) (domain.UpdateResult, error) {
	window := time.Duration(req.TimeWindowHours) * time.Hour
	posts := p.Collect(ctx, req.Communities, window)

	res := domain.UpdateResult{Fetched: len(posts)}
	var brokerErr error

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		env, err := p.envelope(ctx, post)
		if err != nil {
			p.hooks.OnPublishFailed()
			p.logger.Warn("dropping item with invalid envelope", zap.String("item_id", post.FullName), zap.Error(err))
			continue
		}

		if err := p.pub.Publish(ctx, env); err != nil {
			p.hooks.OnPublishFailed()
			p.logger.Error("failed to publish item", zap.String("item_id", env.ItemID), zap.Error(err))
			if errors.Is(err, domain.ErrBrokerUnavailable) {
				brokerErr = err
			}
			continue
		}
		p.hooks.OnPublished()
		res.Queued++
	}

	p.logger.Info("update batch finished",
		zap.Strings("communities", req.Communities),
		zap.Int("fetched", res.Fetched),
		zap.Int("queued", res.Queued),
	)

	if res.Fetched > 0 && res.Queued == 0 && brokerErr != nil {
		return res, fmt.Errorf("no items queued: %w", brokerErr)
	}
	return res, nil
}

func (p *Producer) envelope(ctx context.Context, post source.Post) (domain.Envelope, error) {
	comments, commentsErr := p.src.TopComments(ctx, post, p.cfg.TopComments)
	if commentsErr != nil {
		p.logger.Warn("rendering without comments", zap.String("item_id", post.FullName), zap.Error(commentsErr))
	}

	id := post.FullName
	if id == "" {
		id = post.ID
	}
	env := domain.NewEnvelope(domain.Envelope{
		ItemID:       id,
		Community:    post.Community,
		Title:        post.Title,
		Body:         post.Body,
		Author:       post.Author,
		CreatedAt:    post.CreatedAt,
		URL:          post.URL,
		Score:        post.Score,
		CommentCount: post.CommentCount,
		RenderedText: p.renderer.Render(post.Title, post.Body, comments, commentsErr),
	})
	if err := domain.Validate(&env); err != nil {
		return domain.Envelope{}, err
	}
	return env, nil
}

func withinWindow(posts []source.Post, since time.Time) []source.Post {
	out := make([]source.Post, 0, len(posts))
	for _, p := range posts {
		if !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

func topN(posts []source.Post, n int) []source.Post {
	sortByScore(posts)
	if n >= 0 && len(posts) > n {
		posts = posts[:n]
	}
	return posts
}

func sortByScore(posts []source.Post) {
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
}
