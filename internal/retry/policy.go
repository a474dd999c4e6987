// Package retry classifies errors and computes backoff for transient ones.
package retry

import (
	"math"
	"math/rand"
	"time"

	"ceph2swift/internal/storage"
)

// Policy decides whether an error is worth retrying and how long to wait.
type Policy struct {
	// MaxAttempts is the total number of attempts per object, first try
	// included.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration

	// Multiplier grows the delay per attempt.
	Multiplier float64

	// MaxDelay caps the backoff.
	MaxDelay time.Duration

	// QuotaFactor stretches the backoff for quota/throttling errors, which
	// need longer to clear than a network blip.
	QuotaFactor float64
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		QuotaFactor: 4.0,
	}
}

// Retryable reports whether the error is transient. Checksum mismatches are
// retryable up to MaxAttempts; auth, config and source not-found are not.
func (p Policy) Retryable(err error) bool {
	switch storage.KindOf(err) {
	case storage.KindNetwork, storage.KindQuota, storage.KindChecksumMismatch:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error invalidates the whole run rather than one
// object.
func (p Policy) Fatal(err error) bool {
	return storage.IsFatal(err)
}

// Backoff returns the wait before the given retry. attempt counts the
// attempts already made, so the first retry passes 1. Jitter of up to 50%
// is added to spread out concurrent retries.
func (p Policy) Backoff(attempt int, err error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if storage.KindOf(err) == storage.KindQuota {
		d *= p.QuotaFactor
	}
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	d += d * 0.5 * rand.Float64()
	return time.Duration(d)
}
