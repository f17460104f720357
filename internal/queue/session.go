package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ricirt/community-digest/internal/domain"
)

// ErrNoMessage is returned by Session.Next when the fetch window expired
// without a delivery.
var ErrNoMessage = errors.New("no message available")

// DeadReasonHeader carries the last failure on a dead-lettered envelope.
const DeadReasonHeader = "Digest-Dead-Reason"

// Delivery is one received envelope awaiting its outcome.
// Exactly one of Ack, Reject or Requeue should be called.
type Delivery interface {
	Data() []byte
	// NumDelivered is 1 on first delivery and grows with every redelivery.
	NumDelivered() uint64
	Ack() error
	// Reject removes the message without redelivery.
	Reject() error
	// Requeue returns the message for redelivery after delay (zero means now).
	Requeue(delay time.Duration) error
}

// Session is one consumer connection: its own socket bound to the shared
// durable consumer, holding at most one unacknowledged message.
type Session struct {
	cfg  Config
	nc   *nats.Conn
	js   jetstream.JetStream
	cons jetstream.Consumer
}

// Dial connects, declares the stream and binds the durable consumer.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	nc, js, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	maxAckPending := cfg.MaxAckPending
	if maxAckPending < 1 {
		maxAckPending = 1
	}
	cons, err := js.CreateOrUpdateConsumer(ctx, cfg.Name, jetstream.ConsumerConfig{
		Durable:       cfg.Durable(),
		FilterSubject: cfg.Subject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxAckPending: maxAckPending,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: bind consumer %s: %v", domain.ErrBrokerUnavailable, cfg.Durable(), err)
	}

	return &Session{cfg: cfg, nc: nc, js: js, cons: cons}, nil
}

// Next waits up to the configured fetch window for one delivery.
// It returns ErrNoMessage when the window expires empty.
func (s *Session) Next(ctx context.Context) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch, err := s.cons.Fetch(1, jetstream.FetchMaxWait(s.cfg.FetchWait))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", domain.ErrBrokerUnavailable, err)
	}
	if msg, ok := <-batch.Messages(); ok && msg != nil {
		return &delivery{msg: msg}, nil
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		return nil, fmt.Errorf("%w: fetch: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil, ErrNoMessage
}

// DeadLetter copies data onto the dead-letter subject with the failure reason.
func (s *Session) DeadLetter(ctx context.Context, data []byte, reason string) error {
	msg := nats.NewMsg(s.cfg.DeadSubject())
	msg.Data = data
	msg.Header.Set(DeadReasonHeader, reason)
	if _, err := s.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("%w: dead-letter: %v", domain.ErrBrokerUnavailable, err)
	}
	return nil
}

// Closed reports whether the underlying connection is gone.
func (s *Session) Closed() bool {
	return s.nc == nil || s.nc.IsClosed()
}

// Close drains the connection. Calling it more than once is safe.
func (s *Session) Close() error {
	if s.Closed() {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}

type delivery struct {
	msg jetstream.Msg
}

func (d *delivery) Data() []byte { return d.msg.Data() }

func (d *delivery) NumDelivered() uint64 {
	md, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return md.NumDelivered
}

func (d *delivery) Ack() error    { return d.msg.Ack() }
func (d *delivery) Reject() error { return d.msg.Term() }

func (d *delivery) Requeue(delay time.Duration) error {
	if delay > 0 {
		return d.msg.NakWithDelay(delay)
	}
	return d.msg.Nak()
}
