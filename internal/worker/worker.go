package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
	"github.com/ricirt/community-digest/internal/provider"
	"github.com/ricirt/community-digest/internal/queue"
	"github.com/ricirt/community-digest/internal/repository"
)

// Session is one broker connection bound to the work queue.
type Session interface {
	Next(ctx context.Context) (queue.Delivery, error)
	DeadLetter(ctx context.Context, data []byte, reason string) error
	Closed() bool
	Close() error
}

// Dialer opens a fresh Session. It is called on start and after every
// connection loss.
type Dialer func(ctx context.Context) (Session, error)

// QueueDialer dials the JetStream work queue described by cfg.
func QueueDialer(cfg queue.Config) Dialer {
	return func(ctx context.Context) (Session, error) {
		s, err := queue.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Config tunes one consumer worker.
type Config struct {
	// Wait between reconnect attempts and after unexpected errors.
	ReconnectDelay time.Duration
	// Delay before a requeued message is redelivered.
	RequeueDelay time.Duration
	// Zero means unlimited redelivery.
	MaxDeliveries int
}

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnProcessed  func(action Action)
	OnEnrichment func(result string, latency time.Duration)
}

func (h MetricHooks) withDefaults() MetricHooks {
	if h.OnProcessed == nil {
		h.OnProcessed = func(Action) {}
	}
	if h.OnEnrichment == nil {
		h.OnEnrichment = func(string, time.Duration) {}
	}
	return h
}

// Worker consumes the work queue one message at a time: decode, enrich,
// upsert, then ack. It owns its connection and re-dials whenever the
// connection is lost.
type Worker struct {
	id       int
	dial     Dialer
	enricher provider.Enricher
	repo     repository.ItemRepository
	cfg      Config
	logger   *zap.Logger
	hooks    MetricHooks
	now      func() time.Time

	state atomic.Int32

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// NewWorker returns a consumer in StateDisconnected. The first dial happens
// when Serve runs. Nil hooks are replaced with no-ops.
func NewWorker(
	id int,
	dial Dialer,
	enricher provider.Enricher,
	repo repository.ItemRepository,
	cfg Config,
	logger *zap.Logger,
	hooks MetricHooks,
) *Worker {
	return &Worker{
		id:       id,
		dial:     dial,
		enricher: enricher,
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		hooks:    hooks.withDefaults(),
		now:      time.Now,
	}
}

// State returns the worker's current lifecycle position.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

func (w *Worker) String() string {
	return fmt.Sprintf("consumer-%d", w.id)
}

// Serve runs the consume loop until ctx is cancelled or Stop is called.
// The connection is drained and closed before Serve returns.
func (w *Worker) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		w.setState(StateStopped)
		return suture.ErrDoNotRestart
	}
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("worker started")

	var sess Session
	defer func() {
		if sess != nil {
			if err := sess.Close(); err != nil {
				w.logger.Warn("failed to close session", zap.Error(err))
			}
		}
		w.setState(StateStopped)
		w.logger.Info("worker stopping")
	}()

	for {
		if ctx.Err() != nil {
			return w.exitErr(ctx)
		}

		if sess == nil || sess.Closed() {
			w.setState(StateConnecting)
			s, err := w.dial(ctx)
			if err != nil {
				w.setState(StateDisconnected)
				w.logger.Warn("failed to connect to broker", zap.Error(err), zap.Duration("retry_in", w.cfg.ReconnectDelay))
				if !sleep(ctx, w.cfg.ReconnectDelay) {
					return w.exitErr(ctx)
				}
				continue
			}
			sess = s
			w.setState(StateConsuming)
			w.logger.Info("consuming")
		}

		d, err := sess.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrNoMessage):
			continue
		case ctx.Err() != nil:
			return w.exitErr(ctx)
		default:
			if errors.Is(err, domain.ErrBrokerUnavailable) {
				_ = sess.Close()
				sess = nil
				w.setState(StateDisconnected)
			}
			w.logger.Warn("fetch failed", zap.Error(err), zap.Duration("retry_in", w.cfg.ReconnectDelay))
			if !sleep(ctx, w.cfg.ReconnectDelay) {
				return w.exitErr(ctx)
			}
			continue
		}

		w.setState(StateProcessing)
		if err := w.handle(ctx, sess, d); err != nil {
			w.logger.Warn("settling delivery failed, reconnecting", zap.Error(err))
			_ = sess.Close()
			sess = nil
			w.setState(StateDisconnected)
			continue
		}
		w.setState(StateConsuming)
	}
}

// Stop ends Serve. Calling it more than once, or before Serve, is safe.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) exitErr(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return suture.ErrDoNotRestart
	}
	return ctx.Err()
}

// handle runs one delivery through the pipeline and settles it. The returned
// error is only about settling; pipeline failures are decided, not returned.
func (w *Worker) handle(ctx context.Context, sess Session, d queue.Delivery) error {
	res := w.process(ctx, d.Data())
	action := Decide(res, d.NumDelivered(), w.cfg.MaxDeliveries)

	log := w.logger.With(zap.Stringer("action", action), zap.Uint64("delivery", d.NumDelivered()))
	if res.Err != nil {
		log = log.With(zap.Stringer("stage", res.Stage), zap.Error(res.Err))
	}

	var err error
	switch action {
	case ActionAck:
		log.Debug("message processed")
		err = d.Ack()
	case ActionReject:
		log.Warn("rejecting malformed message")
		err = d.Reject()
	case ActionRequeue:
		delay := w.cfg.RequeueDelay
		if ctx.Err() != nil {
			delay = 0
		}
		log.Warn("requeueing message", zap.Duration("delay", delay))
		err = d.Requeue(delay)
	case ActionDeadLetter:
		if dlErr := sess.DeadLetter(ctx, d.Data(), res.Err.Error()); dlErr != nil {
			log.Error("dead-letter publish failed, requeueing", zap.NamedError("dead_letter_error", dlErr))
			action = ActionRequeue
			err = d.Requeue(w.cfg.RequeueDelay)
			break
		}
		log.Error("message dead-lettered")
		err = d.Reject()
	}

	w.hooks.OnProcessed(action)
	return err
}

func (w *Worker) process(ctx context.Context, data []byte) StageResult {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		return StageResult{Stage: StageDecode, Err: err}
	}

	start := time.Now()
	enr, err := w.enricher.Enrich(ctx, env.RenderedText)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, domain.ErrUnusableEnrichment) {
			w.hooks.OnEnrichment("unusable", elapsed)
			return StageResult{Stage: StageParse, Err: fmt.Errorf("item %s: %w", env.ItemID, err)}
		}
		w.hooks.OnEnrichment("error", elapsed)
		return StageResult{Stage: StageEnrich, Err: fmt.Errorf("item %s: %w", env.ItemID, err)}
	}
	w.hooks.OnEnrichment("ok", elapsed)

	if err := w.repo.Upsert(ctx, domain.NewStoredItem(env, enr, w.now())); err != nil {
		return StageResult{Stage: StageStore, Err: fmt.Errorf("item %s: %w", env.ItemID, err)}
	}
	return StageResult{Stage: StageDone}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

var _ suture.Service = (*Worker)(nil)
