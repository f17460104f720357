package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
)

// Publisher places envelopes on the work subject.
//
// The connection is opened lazily on first use and reused afterwards. Any
// publish error drops both the connection and the JetStream handle so the next
// call starts from a fresh connect. Publish itself never retries.
type Publisher struct {
	cfg    Config
	logger *zap.Logger

	mu sync.Mutex
	nc *nats.Conn
	js jetstream.JetStream
}

// NewPublisher returns a Publisher that has not connected yet.
func NewPublisher(cfg Config, logger *zap.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger}
}

// Publish waits for the broker's persistence ack. The envelope's MessageID is
// sent as the deduplication id.
func (p *Publisher) Publish(ctx context.Context, env domain.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	js, err := p.handle(ctx)
	if err != nil {
		return err
	}

	if _, err := js.Publish(ctx, p.cfg.Subject(), data, jetstream.WithMsgID(env.MessageID())); err != nil {
		p.reset()
		return fmt.Errorf("%w: publish %s: %v", domain.ErrBrokerUnavailable, env.ItemID, err)
	}
	return nil
}

// Depth reports how many envelopes are waiting or in flight.
func (p *Publisher) Depth(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	js, err := p.handle(ctx)
	if err != nil {
		return 0, err
	}
	n, err := depth(ctx, js, p.cfg)
	if err != nil {
		p.reset()
		return 0, fmt.Errorf("%w: %v", domain.ErrBrokerUnavailable, err)
	}
	return n, nil
}

// Close drains and closes the cached connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.nc, p.js = nil, nil
	return err
}

// handle must be called with mu held.
func (p *Publisher) handle(ctx context.Context) (jetstream.JetStream, error) {
	if p.nc != nil && !p.nc.IsClosed() {
		return p.js, nil
	}
	p.reset()

	nc, js, err := connect(ctx, p.cfg)
	if err != nil {
		return nil, err
	}
	p.nc, p.js = nc, js
	p.logger.Info("publisher connected", zap.String("url", p.cfg.URL), zap.String("queue", p.cfg.Name))
	return js, nil
}

// reset must be called with mu held.
func (p *Publisher) reset() {
	if p.nc != nil {
		p.nc.Close()
	}
	p.nc, p.js = nil, nil
}
