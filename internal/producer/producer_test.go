package producer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/producer"
	"github.com/ricirt/community-digest/internal/render"
	"github.com/ricirt/community-digest/internal/source"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	posts       map[string][]source.Post
	failing     map[string]bool
	commentsErr error
}

func (f *fakeSource) HotPosts(_ context.Context, community string, limit int) ([]source.Post, error) {
	if f.failing[community] {
		return nil, errors.New("listing unavailable")
	}
	posts := append([]source.Post(nil), f.posts[community]...)
	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (f *fakeSource) TopComments(context.Context, source.Post, int) ([]string, error) {
	if f.commentsErr != nil {
		return nil, f.commentsErr
	}
	return []string{"nice https://spam.example"}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.Envelope
	err       error
	failIDs   map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failIDs[env.ItemID] {
		return errors.New("publish refused")
	}
	f.published = append(f.published, env)
	return nil
}

func post(id, community string, score int, age time.Duration) source.Post {
	return source.Post{
		ID:           id,
		FullName:     "t3_" + id,
		Community:    community,
		Title:        "post " + id,
		Body:         "body",
		CreatedAt:    now.Add(-age),
		URL:          "https://example.com/" + id,
		Score:        score,
		CommentCount: 1,
	}
}

func newProducer(src producer.Source, pub producer.Publisher, keep int) *producer.Producer {
	return producer.New(src, pub, render.New(5),
		producer.Config{HotLimit: 50, ItemsPerCommunity: keep, TopComments: 5},
		zap.NewNop(), producer.MetricHooks{}, producer.WithClock(func() time.Time { return now }))
}

func ids(posts []source.Post) string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return strings.Join(out, ",")
}

func TestCollect_TimeWindow(t *testing.T) {
	src := &fakeSource{posts: map[string][]source.Post{
		"golang": {
			post("old", "golang", 10, 72*time.Hour),
			post("mid", "golang", 20, 6*time.Hour),
			post("new", "golang", 30, 30*time.Minute),
		},
	}}
	p := newProducer(src, &fakePublisher{}, 10)

	tests := []struct {
		window time.Duration
		want   string
	}{
		{24 * time.Hour, "new,mid"},
		{time.Hour, "new"},
		{168 * time.Hour, "new,mid,old"},
	}
	for _, tc := range tests {
		t.Run(tc.window.String(), func(t *testing.T) {
			if got := ids(p.Collect(context.Background(), []string{"golang"}, tc.window)); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestCollect_TopNPerCommunity(t *testing.T) {
	src := &fakeSource{posts: map[string][]source.Post{
		"golang": {
			post("s150", "golang", 150, time.Hour),
			post("s300", "golang", 300, time.Hour),
			post("s100", "golang", 100, time.Hour),
			post("s250", "golang", 250, time.Hour),
			post("s200", "golang", 200, time.Hour),
		},
	}}
	p := newProducer(src, &fakePublisher{}, 3)

	if got := ids(p.Collect(context.Background(), []string{"golang"}, 24*time.Hour)); got != "s300,s250,s200" {
		t.Fatalf("expected s300,s250,s200, got %s", got)
	}
}

func TestCollect_GlobalSortAndFailureIsolation(t *testing.T) {
	src := &fakeSource{
		posts: map[string][]source.Post{
			"golang": {post("g1", "golang", 50, time.Hour), post("g2", "golang", 5, time.Hour)},
			"rust":   {post("r1", "rust", 70, time.Hour), post("r2", "rust", 20, time.Hour)},
		},
		failing: map[string]bool{"broken": true},
	}
	p := newProducer(src, &fakePublisher{}, 10)

	got := ids(p.Collect(context.Background(), []string{"golang", "broken", "rust"}, 24*time.Hour))
	if got != "r1,g1,r2,g2" {
		t.Fatalf("expected r1,g1,r2,g2, got %s", got)
	}
}

func TestEnqueue_PublishesRenderedEnvelopes(t *testing.T) {
	src := &fakeSource{posts: map[string][]source.Post{
		"golang": {post("a", "golang", 10, time.Hour), post("b", "golang", 20, time.Hour)},
	}}
	pub := &fakePublisher{}
	var published, failed int
	p := producer.New(src, pub, render.New(5),
		producer.Config{HotLimit: 50, ItemsPerCommunity: 10, TopComments: 5},
		zap.NewNop(),
		producer.MetricHooks{OnPublished: func() { published++ }, OnPublishFailed: func() { failed++ }},
		producer.WithClock(func() time.Time { return now }))

	res, err := p.Enqueue(context.Background(), domain.UpdateRequest{Communities: []string{"golang"}, TimeWindowHours: 24})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Fetched != 2 || res.Queued != 2 || published != 2 || failed != 0 {
		t.Fatalf("unexpected result %+v published=%d failed=%d", res, published, failed)
	}

	env := pub.published[0]
	if env.ItemID != "t3_b" || env.SchemaVersion != domain.EnvelopeSchemaVersion {
		t.Fatalf("unexpected first envelope %+v", env)
	}
	if !strings.Contains(env.RenderedText, "Comment 1: nice <outgoing_link>") {
		t.Fatalf("expected redacted comment in rendered text, got %q", env.RenderedText)
	}
}

func TestEnqueue_CommentsFailureStillPublishes(t *testing.T) {
	src := &fakeSource{
		posts:       map[string][]source.Post{"golang": {post("a", "golang", 10, time.Hour)}},
		commentsErr: errors.New("comments down"),
	}
	pub := &fakePublisher{}
	p := newProducer(src, pub, 10)

	res, err := p.Enqueue(context.Background(), domain.UpdateRequest{Communities: []string{"golang"}, TimeWindowHours: 24})
	if err != nil || res.Queued != 1 {
		t.Fatalf("expected one queued item, got %+v err=%v", res, err)
	}
	if strings.Contains(pub.published[0].RenderedText, "comments:") {
		t.Fatalf("expected fallback render, got %q", pub.published[0].RenderedText)
	}
}

func TestEnqueue_PartialPublishFailure(t *testing.T) {
	src := &fakeSource{posts: map[string][]source.Post{
		"golang": {post("a", "golang", 10, time.Hour), post("b", "golang", 20, time.Hour)},
	}}
	pub := &fakePublisher{failIDs: map[string]bool{"t3_b": true}}
	p := newProducer(src, pub, 10)

	res, err := p.Enqueue(context.Background(), domain.UpdateRequest{Communities: []string{"golang"}, TimeWindowHours: 24})
	if err != nil {
		t.Fatalf("partial failure must not be an error: %v", err)
	}
	if res.Fetched != 2 || res.Queued != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEnqueue_BrokerDown(t *testing.T) {
	src := &fakeSource{posts: map[string][]source.Post{"golang": {post("a", "golang", 10, time.Hour)}}}
	pub := &fakePublisher{err: domain.ErrBrokerUnavailable}
	p := newProducer(src, pub, 10)

	res, err := p.Enqueue(context.Background(), domain.UpdateRequest{Communities: []string{"golang"}, TimeWindowHours: 24})
	if !errors.Is(err, domain.ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}
	if res.Fetched != 1 || res.Queued != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEnqueue_NothingFetched(t *testing.T) {
	p := newProducer(&fakeSource{failing: map[string]bool{"golang": true}}, &fakePublisher{err: domain.ErrBrokerUnavailable}, 10)

	res, err := p.Enqueue(context.Background(), domain.UpdateRequest{Communities: []string{"golang"}, TimeWindowHours: 24})
	if err != nil || res.Fetched != 0 || res.Queued != 0 {
		t.Fatalf("expected empty successful result, got %+v err=%v", res, err)
	}
}
