package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/queue"
)

func startBroker(t *testing.T) queue.Config {
	t.Helper()
	srv, err := queue.NewEmbeddedServer(queue.ServerConfig{Host: "127.0.0.1", Port: -1, StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("start embedded broker: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg := queue.DefaultConfig()
	cfg.URL = srv.ClientURL()
	cfg.Name = "test_posts"
	cfg.FetchWait = 200 * time.Millisecond
	return cfg
}

func envelope(id string) domain.Envelope {
	return domain.NewEnvelope(domain.Envelope{
		ItemID:       id,
		Community:    "golang",
		Title:        "title " + id,
		CreatedAt:    time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
		Score:        10,
		RenderedText: "Title: title " + id,
	})
}

func waitDepth(t *testing.T, p *queue.Publisher, want uint64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var got uint64
	for time.Now().Before(deadline) {
		n, err := p.Depth(context.Background())
		if err != nil {
			t.Fatalf("depth: %v", err)
		}
		if got = n; got == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected depth %d, got %d", want, got)
}

func dial(t *testing.T, cfg queue.Config) *queue.Session {
	t.Helper()
	s, err := queue.Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func streamInfo(t *testing.T, cfg queue.Config, name string) *jetstream.StreamInfo {
	t.Helper()
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	stream, err := js.Stream(context.Background(), name)
	if err != nil {
		t.Fatalf("stream %s: %v", name, err)
	}
	info, err := stream.Info(context.Background())
	if err != nil {
		t.Fatalf("stream info %s: %v", name, err)
	}
	return info
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*queue.Config)
		ok     bool
	}{
		{"defaults", func(*queue.Config) {}, true},
		{"empty name", func(c *queue.Config) { c.Name = "" }, false},
		{"dotted name", func(c *queue.Config) { c.Name = "a.b" }, false},
		{"zero length", func(c *queue.Config) { c.MaxMsgs = 0 }, false},
		{"zero ttl", func(c *queue.Config) { c.MaxAge = 0 }, false},
		{"dedup longer than ttl", func(c *queue.Config) { c.DuplicateWindow = 48 * time.Hour }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := queue.DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tc.ok {
				t.Fatalf("ok=%v, err=%v", tc.ok, err)
			}
		})
	}
}

func TestPublishConsumeAck(t *testing.T) {
	cfg := startBroker(t)
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()

	if err := pub.Publish(ctx, envelope("t3_1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitDepth(t, pub, 1)

	s := dial(t, cfg)
	d, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if d.NumDelivered() != 1 {
		t.Fatalf("expected first delivery, got %d", d.NumDelivered())
	}
	env, err := domain.DecodeEnvelope(d.Data())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.ItemID != "t3_1" {
		t.Fatalf("unexpected item %q", env.ItemID)
	}
	if err := d.Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}
	waitDepth(t, pub, 0)
}

func TestPublish_DuplicateMessageIDIsDropped(t *testing.T) {
	cfg := startBroker(t)
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()

	for i := 0; i < 3; i++ {
		if err := pub.Publish(ctx, envelope("t3_dup")); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	waitDepth(t, pub, 1)
}

func TestReject_RemovesMessage(t *testing.T) {
	cfg := startBroker(t)
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()
	if err := pub.Publish(ctx, envelope("t3_bad")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	s := dial(t, cfg)
	d, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := d.Reject(); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := s.Next(ctx); !errors.Is(err, queue.ErrNoMessage) {
		t.Fatalf("expected ErrNoMessage after reject, got %v", err)
	}
	waitDepth(t, pub, 0)
}

func TestRequeue_Redelivers(t *testing.T) {
	cfg := startBroker(t)
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()
	if err := pub.Publish(ctx, envelope("t3_retry")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	s := dial(t, cfg)
	first, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := first.Requeue(0); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	var second queue.Delivery
	for i := 0; i < 10 && second == nil; i++ {
		second, err = s.Next(ctx)
		if err != nil && !errors.Is(err, queue.ErrNoMessage) {
			t.Fatalf("next: %v", err)
		}
	}
	if second == nil {
		t.Fatal("requeued message was not redelivered")
	}
	if second.NumDelivered() != 2 {
		t.Fatalf("expected delivery count 2, got %d", second.NumDelivered())
	}
	if string(second.Data()) != string(first.Data()) {
		t.Fatal("redelivered payload differs")
	}
	_ = second.Ack()
}

func TestStream_BoundedEvictsOldest(t *testing.T) {
	cfg := startBroker(t)
	cfg.MaxMsgs = 3
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()
	for _, id := range []string{"t3_0", "t3_1", "t3_2", "t3_3", "t3_4"} {
		if err := pub.Publish(ctx, envelope(id)); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	waitDepth(t, pub, 3)

	info := streamInfo(t, cfg, cfg.Name)
	if info.Config.Storage != jetstream.FileStorage {
		t.Fatalf("expected file storage, got %v", info.Config.Storage)
	}
	if info.Config.Retention != jetstream.WorkQueuePolicy {
		t.Fatalf("expected work-queue retention, got %v", info.Config.Retention)
	}
	if info.Config.Discard != jetstream.DiscardOld {
		t.Fatalf("expected discard old, got %v", info.Config.Discard)
	}
	if info.Config.MaxMsgs != 3 || info.Config.MaxAge != cfg.MaxAge {
		t.Fatalf("unexpected bounds max_msgs=%d max_age=%s", info.Config.MaxMsgs, info.Config.MaxAge)
	}

	// A second client declares the same stream again without disturbing it.
	other := queue.NewPublisher(cfg, zap.NewNop())
	defer other.Close()
	waitDepth(t, other, 3)

	s := dial(t, cfg)
	d, err := s.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	env, err := domain.DecodeEnvelope(d.Data())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.ItemID != "t3_2" {
		t.Fatalf("expected oldest surviving item t3_2, got %q", env.ItemID)
	}
	_ = d.Ack()
	waitDepth(t, pub, 2)
}

func TestDeadLetter_LeavesWorkSubject(t *testing.T) {
	cfg := startBroker(t)
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()
	waitDepth(t, pub, 0)

	s := dial(t, cfg)
	if err := s.DeadLetter(ctx, []byte(`{"item_id":"x"}`), "enrichment unavailable"); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	if _, err := s.Next(ctx); !errors.Is(err, queue.ErrNoMessage) {
		t.Fatalf("dead letters must not reach the consumer, got %v", err)
	}
	waitDepth(t, pub, 0)

	if info := streamInfo(t, cfg, cfg.DeadStream()); info.State.Msgs != 1 {
		t.Fatalf("expected one dead letter, got %d", info.State.Msgs)
	}
}

func TestDeadLetters_DoNotEvictWork(t *testing.T) {
	cfg := startBroker(t)
	cfg.MaxMsgs = 2
	ctx := context.Background()

	pub := queue.NewPublisher(cfg, zap.NewNop())
	defer pub.Close()
	for _, id := range []string{"t3_a", "t3_b"} {
		if err := pub.Publish(ctx, envelope(id)); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}
	waitDepth(t, pub, 2)

	s := dial(t, cfg)
	for i := 0; i < 3; i++ {
		if err := s.DeadLetter(ctx, []byte(`{"item_id":"x"}`), "enrichment unavailable"); err != nil {
			t.Fatalf("dead letter %d: %v", i, err)
		}
	}

	waitDepth(t, pub, 2)
	if info := streamInfo(t, cfg, cfg.DeadStream()); info.State.Msgs != 2 {
		t.Fatalf("expected dead-letter stream capped at 2, got %d", info.State.Msgs)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	cfg := startBroker(t)
	s, err := queue.Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if s.Closed() {
		t.Fatal("fresh session reported closed")
	}
	_ = s.Close()
	_ = s.Close()

	deadline := time.Now().Add(2 * time.Second)
	for !s.Closed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !s.Closed() {
		t.Fatal("expected session closed after Close")
	}
}

func TestPublisher_BrokerUnavailable(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"

	pub := queue.NewPublisher(cfg, zap.NewNop())
	err := pub.Publish(context.Background(), envelope("t3_1"))
	if !errors.Is(err, domain.ErrBrokerUnavailable) {
		t.Fatalf("expected ErrBrokerUnavailable, got %v", err)
	}
}
