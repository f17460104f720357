package worker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ricirt/community-digest/internal/domain"
)

// Updater runs one producer batch.
type Updater interface {
	Update(ctx context.Context, req domain.UpdateRequest) (domain.UpdateResult, error)
}

// SchedulerWorker enqueues a fixed list of communities on a cron schedule,
// the same batch a POST /api/v1/update would trigger.
type SchedulerWorker struct {
	updater Updater
	req     domain.UpdateRequest
	cron    *cron.Cron
	logger  *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewSchedulerWorker validates req and registers it under the cron spec. A
// tick that fires while the previous batch is still running is skipped.
func NewSchedulerWorker(spec string, req domain.UpdateRequest, updater Updater, logger *zap.Logger) (*SchedulerWorker, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("scheduled request: %w", err)
	}

	sw := &SchedulerWorker{
		updater: updater,
		req:     req,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger.Sugar()}))),
		logger:  logger,
		ctx:     context.Background(),
	}
	if _, err := sw.cron.AddFunc(spec, sw.tick); err != nil {
		return nil, fmt.Errorf("add cron %q: %w", spec, err)
	}
	return sw, nil
}

// Run starts the schedule and blocks until ctx is cancelled. A running batch
// is allowed to finish before Run returns.
func (sw *SchedulerWorker) Run(ctx context.Context) {
	sw.mu.Lock()
	sw.ctx = ctx
	sw.mu.Unlock()

	sw.logger.Info("scheduler worker started", zap.Strings("communities", sw.req.Communities))
	sw.cron.Start()

	<-ctx.Done()

	sw.logger.Info("scheduler worker stopping")
	<-sw.cron.Stop().Done()
}

func (sw *SchedulerWorker) tick() {
	sw.mu.Lock()
	ctx := sw.ctx
	sw.mu.Unlock()

	sw.RunOnce(ctx)
}

// RunOnce performs a single scheduled batch immediately.
func (sw *SchedulerWorker) RunOnce(ctx context.Context) {
	req := sw.req
	req.Communities = slices.Clone(sw.req.Communities)

	res, err := sw.updater.Update(ctx, req)
	if err != nil {
		sw.logger.Error("scheduled update failed", zap.Error(err),
			zap.Int("fetched", res.Fetched), zap.Int("queued", res.Queued))
		return
	}
	sw.logger.Info("scheduled update finished", zap.Int("fetched", res.Fetched), zap.Int("queued", res.Queued))
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
