package worker

import (
	"context"
	"strings"
	"time"

	"ceph2swift/internal/checkpoint"
	"ceph2swift/internal/metrics"
	"ceph2swift/internal/retry"
	"ceph2swift/internal/storage"

	"go.uber.org/zap"
)

// processor handles one task at a time: state transitions, the retry loop,
// transfer and verification.
type processor struct {
	config     Config
	policy     retry.Policy
	store      checkpoint.Store
	metrics    *metrics.Collector
	transferer *Transferer
	verifier   *Verifier
	logger     *zap.Logger
}

// process migrates one object. It returns an error only when the run must
// abort (auth or config failure); every per-object outcome is recorded in
// the store instead.
func (p *processor) process(ctx context.Context, task Task) error {
	p.metrics.WorkerStarted()
	defer p.metrics.WorkerFinished()

	start := time.Now()

	if task.VerifyOnly {
		if done, err := p.reverifyDone(ctx, task); done || err != nil {
			return err
		}
		// Verification failed; fall through and re-transfer.
	}

	if p.config.SkipExisting && !task.VerifyOnly && p.destinationMatches(ctx, task) {
		p.saveDone(task, task.ETag)
		p.metrics.IncSkipped(task.Size)
		p.logger.Debug("Skipping object already present in destination", zap.String("key", task.Key))
		return nil
	}

	p.saveRecord(task, checkpoint.StatusInProgress, 0, nil)

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			// Cancelled between attempts: rewind to pending so the next
			// resume picks the object up again.
			p.saveRecord(task, checkpoint.StatusPending, attempt-1, lastErr)
			return nil
		}

		checksum, err := p.attempt(ctx, task)
		if err == nil {
			p.saveDone(task, checksum)
			p.metrics.IncDone(task.Size)
			p.metrics.ObserveDuration(time.Since(start))
			p.logger.Info("Object migrated",
				zap.String("key", task.Key),
				zap.Int64("size", task.Size),
				zap.String("checksum", checksum),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}

		lastErr = err
		attempts = attempt
		p.logger.Warn("Transfer attempt failed",
			zap.String("key", task.Key),
			zap.Int("attempt", attempt),
			zap.String("kind", string(storage.KindOf(err))),
			zap.Error(err),
		)

		if p.policy.Fatal(err) {
			// The whole run is misconfigured. Rewind so a fixed run
			// retries this object.
			p.saveRecord(task, checkpoint.StatusPending, attempt, err)
			return err
		}
		if !p.policy.Retryable(err) {
			break
		}

		p.saveRecord(task, checkpoint.StatusInProgress, attempt, err)

		if attempt < p.config.MaxAttempts {
			p.metrics.IncRetry()
			if !sleepCtx(ctx, p.policy.Backoff(attempt, err)) {
				p.saveRecord(task, checkpoint.StatusPending, attempt, err)
				return nil
			}
		}
	}

	p.saveFailed(task, attempts, lastErr)
	p.metrics.IncFailed()
	p.logger.Error("Object failed terminally",
		zap.String("key", task.Key),
		zap.String("kind", string(storage.KindOf(lastErr))),
		zap.Error(lastErr),
	)
	return nil
}

// attempt runs one transfer plus verification under the per-object timeout.
// The timeout context is detached from run cancellation so an in-flight
// transfer gets its bounded grace period instead of being cut mid-stream.
func (p *processor) attempt(parent context.Context, task Task) (string, error) {
	ctx := context.WithoutCancel(parent)
	if p.config.TransferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TransferTimeout)
		defer cancel()
	}

	checksum, err := p.transferer.Transfer(ctx, task)
	if err != nil {
		return "", err
	}
	if err := p.verifier.Verify(ctx, task, checksum); err != nil {
		return "", err
	}
	return checksum, nil
}

// reverifyDone handles --verify-done admissions. Returns done=true when the
// existing copy still checks out; otherwise the record is rewound and the
// caller re-transfers.
func (p *processor) reverifyDone(ctx context.Context, task Task) (bool, error) {
	rec, err := p.store.Get(task.Key)
	if err != nil || rec == nil {
		return false, nil
	}

	if verr := p.verifier.VerifyExisting(ctx, task, rec.DstChecksum); verr != nil {
		if p.policy.Fatal(verr) {
			return false, verr
		}
		p.logger.Warn("Done record failed re-verification, re-transferring",
			zap.String("key", task.Key),
			zap.Error(verr),
		)
		if rerr := p.store.Reset(task.Key); rerr != nil {
			p.logger.Error("Failed to rewind record", zap.String("key", task.Key), zap.Error(rerr))
		}
		return false, nil
	}

	p.metrics.IncSkipped(task.Size)
	p.logger.Debug("Done record re-verified", zap.String("key", task.Key))
	return true, nil
}

// destinationMatches reports whether the destination already holds an
// identical copy (size plus comparable checksum).
func (p *processor) destinationMatches(ctx context.Context, task Task) bool {
	sum, size, err := p.dstHead(ctx, task.Key)
	if err != nil {
		return false
	}
	return size == task.Size && plainMD5.MatchString(task.ETag) && strings.EqualFold(sum, task.ETag)
}

func (p *processor) dstHead(ctx context.Context, key string) (string, int64, error) {
	hctx := ctx
	if p.config.TransferTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, p.config.TransferTimeout)
		defer cancel()
	}
	return p.verifier.dst.HeadChecksum(hctx, key)
}

func (p *processor) saveDone(task Task, checksum string) {
	rec := &checkpoint.Record{
		Key:         task.Key,
		Size:        task.Size,
		ETag:        task.ETag,
		Status:      checkpoint.StatusDone,
		DstChecksum: checksum,
	}
	if err := p.store.Save(rec); err != nil {
		p.logger.Error("Failed to save done record", zap.String("key", task.Key), zap.Error(err))
	}
}

func (p *processor) saveFailed(task Task, attempts int, cause error) {
	rec := &checkpoint.Record{
		Key:      task.Key,
		Size:     task.Size,
		ETag:     task.ETag,
		Status:   checkpoint.StatusFailed,
		Attempts: attempts,
		Terminal: true,
	}
	if cause != nil {
		rec.ErrorKind = storage.KindOf(cause)
		rec.LastError = cause.Error()
	}
	if err := p.store.Save(rec); err != nil {
		p.logger.Error("Failed to save failed record", zap.String("key", task.Key), zap.Error(err))
	}
}

func (p *processor) saveRecord(task Task, status checkpoint.Status, attempts int, cause error) {
	rec := &checkpoint.Record{
		Key:      task.Key,
		Size:     task.Size,
		ETag:     task.ETag,
		Status:   status,
		Attempts: attempts,
	}
	if cause != nil {
		rec.ErrorKind = storage.KindOf(cause)
		rec.LastError = cause.Error()
	}
	if err := p.store.Save(rec); err != nil {
		p.logger.Error("Failed to save record", zap.String("key", task.Key), zap.Error(err))
	}
}

// sleepCtx waits d or until ctx is cancelled; reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
