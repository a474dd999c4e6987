package worker

import (
	"context"

	"ceph2swift/internal/checkpoint"
	"ceph2swift/internal/metrics"
	"ceph2swift/internal/retry"
	"ceph2swift/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool runs N workers over a shared task channel. Per-object failures are
// absorbed at the worker boundary and recorded in the checkpoint store;
// only run-fatal errors (auth, config) escape and cancel the group.
type Pool struct {
	size    int
	config  Config
	policy  retry.Policy
	src     storage.Backend
	dst     storage.Backend
	store   checkpoint.Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewPool creates a worker pool.
func NewPool(
	size int,
	config Config,
	policy retry.Policy,
	src, dst storage.Backend,
	store checkpoint.Store,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		size:    size,
		config:  config,
		policy:  policy,
		src:     src,
		dst:     dst,
		store:   store,
		metrics: collector,
		logger:  logger,
	}
}

// Run consumes tasks until the channel closes or the context is cancelled.
// It returns the first fatal error, if any.
func (p *Pool) Run(ctx context.Context, tasks <-chan Task) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.size; i++ {
		id := i
		g.Go(func() error {
			return p.worker(ctx, id, tasks)
		})
	}
	return g.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, tasks <-chan Task) error {
	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	proc := &processor{
		config:     p.config,
		policy:     p.policy,
		store:      p.store,
		metrics:    p.metrics,
		transferer: NewTransferer(p.src, p.dst),
		verifier:   NewVerifier(p.src, p.dst),
		logger:     logger,
	}

	for {
		select {
		case task, ok := <-tasks:
			if !ok {
				logger.Debug("Worker finished, no more tasks")
				return nil
			}
			if err := proc.process(ctx, task); err != nil {
				logger.Error("Fatal error, aborting run",
					zap.String("key", task.Key),
					zap.Error(err),
				)
				return err
			}

		case <-ctx.Done():
			logger.Debug("Worker stopped, run cancelled")
			return ctx.Err()
		}
	}
}
