package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ceph2swift/internal/checkpoint"
	"ceph2swift/internal/config"
	"ceph2swift/internal/metrics"
	"ceph2swift/internal/progress"
	"ceph2swift/internal/retry"
	"ceph2swift/internal/storage"
	"ceph2swift/internal/worker"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner composes the lister, the worker pool and the progress store into
// one migration run.
type Runner struct {
	cfg     *config.Config
	logger  *zap.Logger
	src     storage.Backend
	dst     storage.Backend
	store   checkpoint.Store
	metrics *metrics.Collector
	policy  retry.Policy
	pool    *worker.Pool
	lister  *Lister
	markers *markerWriter
}

// New wires a runner from configuration. Backend construction errors are
// config or auth classified, so a bad endpoint fails here, before any
// object is touched.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	src, err := storage.NewS3Backend(storage.S3Config{
		Endpoint:  cfg.Source.Endpoint,
		AccessKey: cfg.Source.AccessKey,
		SecretKey: cfg.Source.SecretKey,
		Region:    cfg.Source.Region,
		Bucket:    cfg.Source.Bucket,
		Secure:    cfg.Source.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create source backend: %w", err)
	}

	dst, err := storage.NewSwiftBackend(ctx, storage.SwiftConfig{
		AuthURL:     cfg.Dest.AuthURL,
		Username:    cfg.Dest.Username,
		APIKey:      cfg.Dest.APIKey,
		Tenant:      cfg.Dest.Tenant,
		Domain:      cfg.Dest.Domain,
		Region:      cfg.Dest.Region,
		Container:   cfg.Dest.Container,
		AuthVersion: cfg.Dest.AuthVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create destination backend: %w", err)
	}

	store, err := checkpoint.NewSQLiteStore(cfg.Migration.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress store: %w", err)
	}

	return NewWithBackends(cfg, logger, src, dst, store), nil
}

// NewWithBackends wires a runner over already-constructed collaborators.
func NewWithBackends(cfg *config.Config, logger *zap.Logger, src, dst storage.Backend, store checkpoint.Store) *Runner {
	policy := retry.Policy{
		MaxAttempts: cfg.Migration.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Migration.RetryBackoffMs) * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    time.Duration(cfg.Migration.MaxBackoffMs) * time.Millisecond,
		QuotaFactor: 4.0,
	}

	collector := metrics.New()

	pool := worker.NewPool(
		cfg.Migration.Concurrency,
		worker.Config{
			MaxAttempts:     cfg.Migration.MaxAttempts,
			TransferTimeout: cfg.Migration.TransferTimeoutDuration(),
			SkipExisting:    cfg.Migration.SkipExisting,
		},
		policy,
		src, dst, store, collector, logger,
	)

	lister := NewLister(src, policy, cfg.Migration.ListTimeoutDuration(), cfg.Migration.Exclude, logger)

	var markers *markerWriter
	if cfg.Migration.FolderMarkers {
		markers = newMarkerWriter(dst, logger)
	}

	return &Runner{
		cfg:     cfg,
		logger:  logger,
		src:     src,
		dst:     dst,
		store:   store,
		metrics: collector,
		policy:  policy,
		pool:    pool,
		lister:  lister,
		markers: markers,
	}
}

// Run executes the migration and returns the final summary. The error is
// non-nil only for run-fatal conditions: auth or config errors, a listing
// that failed after retries, or cancellation.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	r.logger.Info("Starting migration",
		zap.String("src_bucket", r.cfg.Source.Bucket),
		zap.String("dst_container", r.cfg.Dest.Container),
		zap.Int("concurrency", r.cfg.Migration.Concurrency),
		zap.Bool("dry_run", r.cfg.Migration.DryRun),
		zap.Bool("force", r.cfg.Migration.Force),
		zap.Bool("verify_done", r.cfg.Migration.VerifyDone),
	)

	if r.cfg.Migration.DryRun {
		return r.dryRun(ctx)
	}

	if r.cfg.Migration.Force {
		if err := r.store.ResetAll(); err != nil {
			return Summary{}, fmt.Errorf("failed to reset progress store: %w", err)
		}
		r.logger.Info("Force mode: all records rewound to pending")
	}

	// A crash can leave records in_progress; they are pending again now.
	if n, err := r.store.ResetInProgress(); err != nil {
		return Summary{}, fmt.Errorf("failed to reset in-progress records: %w", err)
	} else if n > 0 {
		r.logger.Info("Rewound interrupted records", zap.Int64("count", n))
	}

	if addr := r.cfg.Migration.MetricsAddr; addr != "" {
		srv := r.metrics.Server(addr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Warn("Metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				r.logger.Warn("Metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	var display *progress.Display
	if r.cfg.Migration.ShowProgress {
		display = progress.NewDisplay(r.metrics.Tracker(), r.logger, 10*time.Second)
		display.Start()
	}

	queueDepth := 2 * r.cfg.Migration.Concurrency
	descriptors := make(chan storage.ObjectInfo, queueDepth)
	tasks := make(chan worker.Task, queueDepth)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(descriptors)
		return r.lister.Stream(gctx, descriptors)
	})
	g.Go(func() error {
		defer close(tasks)
		return r.admit(gctx, descriptors, tasks)
	})
	g.Go(func() error {
		return r.pool.Run(gctx, tasks)
	})

	runErr := g.Wait()

	if display != nil {
		display.Stop()
	}

	summary, sumErr := r.buildSummary()
	if runErr == nil {
		runErr = sumErr
	}
	summary.Log(r.logger)
	return summary, runErr
}

// admit applies the resume policy to each listed descriptor and feeds the
// worker queue. Records are created pending on first sight; done records
// are skipped (or re-verified under --verify-done); terminal failures stay
// failed.
func (r *Runner) admit(ctx context.Context, in <-chan storage.ObjectInfo, out chan<- worker.Task) error {
	for obj := range in {
		task := worker.Task{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			ContentType:  obj.ContentType,
			Metadata:     obj.Metadata,
			LastModified: obj.LastModified,
		}

		// Folder markers are laid down before the object's admission check
		// so the destination tree exists even for keys later skipped.
		if r.markers != nil {
			if err := r.markers.ensure(ctx, obj.Key); err != nil {
				return err
			}
		}

		rec, err := r.store.Get(obj.Key)
		if err != nil {
			return fmt.Errorf("progress store read failed: %w", err)
		}

		if rec == nil {
			if err := r.store.Save(&checkpoint.Record{
				Key:    obj.Key,
				Size:   obj.Size,
				ETag:   obj.ETag,
				Status: checkpoint.StatusPending,
			}); err != nil {
				return fmt.Errorf("progress store write failed: %w", err)
			}
		} else {
			switch {
			case rec.Status == checkpoint.StatusDone && r.cfg.Migration.VerifyDone:
				task.VerifyOnly = true
			case rec.Status == checkpoint.StatusDone:
				r.metrics.IncSkipped(obj.Size)
				r.logger.Debug("Skipping done object", zap.String("key", obj.Key))
				continue
			case rec.Terminal:
				r.logger.Debug("Skipping terminally failed object", zap.String("key", obj.Key))
				continue
			}
		}

		select {
		case out <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// dryRun lists the source and reports the plan without touching the
// destination or the progress store.
func (r *Runner) dryRun(ctx context.Context) (Summary, error) {
	descriptors := make(chan storage.ObjectInfo, 2*r.cfg.Migration.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(descriptors)
		return r.lister.Stream(gctx, descriptors)
	})

	var summary Summary
	for obj := range descriptors {
		summary.PlannedObjects++
		summary.PlannedBytes += obj.Size
		r.logger.Debug("Would migrate",
			zap.String("key", obj.Key),
			zap.Int64("size", obj.Size),
		)
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	r.logger.Info("Dry run complete",
		zap.Int64("objects", summary.PlannedObjects),
		zap.String("bytes", progress.FormatBytes(summary.PlannedBytes)),
	)
	return summary, nil
}

func (r *Runner) buildSummary() (Summary, error) {
	counts, err := r.store.Counts()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read progress store counts: %w", err)
	}

	summary := Summary{
		Done:    counts.Done,
		Failed:  counts.Failed,
		Skipped: r.metrics.Tracker().GetStatus().SkippedObjects,
	}

	failed, err := r.store.ListFailed()
	if err != nil {
		return summary, fmt.Errorf("failed to list failed records: %w", err)
	}
	for _, rec := range failed {
		summary.FailedObjects = append(summary.FailedObjects, FailedObject{
			Key:      rec.Key,
			Kind:     rec.ErrorKind,
			Attempts: rec.Attempts,
			Error:    rec.LastError,
		})
	}
	return summary, nil
}

// Close releases the progress store.
func (r *Runner) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}
