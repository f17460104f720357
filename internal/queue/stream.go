package queue

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ricirt/community-digest/internal/domain"
)

// connect opens a fresh connection with client-side reconnection disabled:
// a broken connection surfaces as closed and the caller redials.
func connect(ctx context.Context, cfg Config) (*nats.Conn, jetstream.JetStream, error) {
	name := cfg.ClientName
	if name == "" {
		name = "community-digest"
	}

	nc, err := nats.Connect(cfg.URL, nats.Name(name), nats.NoReconnect())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connect %s: %v", domain.ErrBrokerUnavailable, cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("%w: jetstream context: %v", domain.ErrBrokerUnavailable, err)
	}

	if _, err := EnsureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

// EnsureStream declares the work stream and its dead-letter stream with the
// configured bounds. It is idempotent and runs on every connect from both sides.
//
// Work-queue retention removes a message once it is acked or terminated, so
// the work stream only ever holds outstanding work. When the length limit is
// reached the oldest message is evicted. Dead letters live in a separate
// stream so they never take space from pending work.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg Config) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   []string{cfg.Subject()},
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		MaxMsgs:    cfg.MaxMsgs,
		MaxAge:     cfg.MaxAge,
		Discard:    jetstream.DiscardOld,
		Duplicates: cfg.DuplicateWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: declare stream %s: %v", domain.ErrBrokerUnavailable, cfg.Name, err)
	}

	// Declared after the work stream, which may still own the dead subject
	// from an earlier layout.
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.DeadStream(),
		Subjects:  []string{cfg.DeadSubject()},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		MaxMsgs:   cfg.MaxMsgs,
		MaxAge:    cfg.MaxAge,
		Discard:   jetstream.DiscardOld,
	}); err != nil {
		return nil, fmt.Errorf("%w: declare stream %s: %v", domain.ErrBrokerUnavailable, cfg.DeadStream(), err)
	}
	return stream, nil
}

// depth counts messages waiting on the work subject, in flight ones included.
func depth(ctx context.Context, js jetstream.JetStream, cfg Config) (uint64, error) {
	stream, err := js.Stream(ctx, cfg.Name)
	if err != nil {
		return 0, fmt.Errorf("get stream %s: %w", cfg.Name, err)
	}
	info, err := stream.Info(ctx, jetstream.WithSubjectFilter(cfg.Subject()))
	if err != nil {
		return 0, fmt.Errorf("stream info %s: %w", cfg.Name, err)
	}
	return info.State.Subjects[cfg.Subject()], nil
}
