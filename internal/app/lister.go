package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ceph2swift/internal/retry"
	"ceph2swift/internal/storage"

	"go.uber.org/zap"
)

// Lister produces a lazy, deduplicated stream of object descriptors from
// the source bucket. Listing failures are run-fatal after retries: a
// partial listing would silently skip objects.
type Lister struct {
	backend     storage.Backend
	policy      retry.Policy
	pageTimeout time.Duration
	exclude     string
	logger      *zap.Logger
}

// NewLister builds a lister over the source backend.
func NewLister(backend storage.Backend, policy retry.Policy, pageTimeout time.Duration, exclude string, logger *zap.Logger) *Lister {
	return &Lister{
		backend:     backend,
		policy:      policy,
		pageTimeout: pageTimeout,
		exclude:     exclude,
		logger:      logger,
	}
}

// Stream pages through the source bucket and sends each descriptor on out,
// blocking when out is full so listing never buffers unboundedly. Each key
// is emitted at most once per run; directory markers and excluded keys are
// dropped. The caller closes out.
func (l *Lister) Stream(ctx context.Context, out chan<- storage.ObjectInfo) error {
	seen := make(map[string]struct{})
	token := ""
	var total, bytes int64

	for {
		page, err := l.fetchPage(ctx, token)
		if err != nil {
			return fmt.Errorf("listing failed: %w", err)
		}

		for _, obj := range page.Objects {
			if strings.HasSuffix(obj.Key, "/") {
				// Directory marker, nothing to transfer.
				continue
			}
			if l.exclude != "" && strings.Contains(obj.Key, l.exclude) {
				l.logger.Debug("Excluded by filter", zap.String("key", obj.Key))
				continue
			}
			if _, dup := seen[obj.Key]; dup {
				l.logger.Debug("Duplicate key in listing", zap.String("key", obj.Key))
				continue
			}
			seen[obj.Key] = struct{}{}
			total++
			bytes += obj.Size

			select {
			case out <- obj:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !page.Truncated {
			l.logger.Info("Listing complete",
				zap.Int64("objects", total),
				zap.Int64("bytes", bytes),
			)
			return nil
		}
		token = page.NextToken
	}
}

// fetchPage fetches one page, retrying transient errors through the policy.
func (l *Lister) fetchPage(ctx context.Context, token string) (storage.Page, error) {
	var lastErr error
	for attempt := 1; attempt <= l.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return storage.Page{}, err
		}

		pctx := ctx
		if l.pageTimeout > 0 {
			var cancel context.CancelFunc
			pctx, cancel = context.WithTimeout(ctx, l.pageTimeout)
			page, err := l.backend.List(pctx, token)
			cancel()
			if err == nil {
				return page, nil
			}
			lastErr = err
		} else {
			page, err := l.backend.List(pctx, token)
			if err == nil {
				return page, nil
			}
			lastErr = err
		}

		if l.policy.Fatal(lastErr) || !l.policy.Retryable(lastErr) {
			return storage.Page{}, lastErr
		}

		l.logger.Warn("Listing page failed, retrying",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < l.policy.MaxAttempts {
			if !sleepCtx(ctx, l.policy.Backoff(attempt, lastErr)) {
				return storage.Page{}, ctx.Err()
			}
		}
	}
	return storage.Page{}, lastErr
}

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
