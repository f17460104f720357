package worker

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/provider"
	"github.com/ricirt/community-digest/internal/repository"
)

// Pool supervises the consumer workers. Each worker has its own connection
// and all of them share the durable consumer, so messages are spread across
// workers while every worker stays strictly sequential.
type Pool struct {
	sup     *suture.Supervisor
	workers []*Worker
	errCh   <-chan error
}

// NewPool creates n identical workers under one supervisor. A worker whose
// Serve returns unexpectedly is restarted with suture's backoff.
func NewPool(
	n int,
	dial Dialer,
	enricher provider.Enricher,
	repo repository.ItemRepository,
	cfg Config,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	if n < 1 {
		n = 1
	}

	sup := suture.New("consumer-pool", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn("supervisor event",
				zap.String("event", e.String()),
				zap.Any("details", e.Map()),
			)
		},
		FailureBackoff: 15 * time.Second,
		Timeout:        10 * time.Second,
	})

	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(i, dial, enricher, repo, cfg, logger.With(zap.Int("worker_id", i)), hooks)
		sup.Add(workers[i])
	}

	return &Pool{sup: sup, workers: workers}
}

// Start launches the supervisor in the background. Cancelling ctx stops every
// worker; each one settles its in-flight message first.
func (p *Pool) Start(ctx context.Context) {
	p.errCh = p.sup.ServeBackground(ctx)
}

// Stop asks every worker to finish without waiting for ctx.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}

// Wait blocks until the supervisor has returned after ctx is cancelled.
func (p *Pool) Wait() error {
	if p.errCh == nil {
		return nil
	}
	return <-p.errCh
}

// Workers exposes the pool's workers for state reporting.
func (p *Pool) Workers() []*Worker {
	return p.workers
}
