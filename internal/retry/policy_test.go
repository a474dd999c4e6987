package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"ceph2swift/internal/storage"

	"github.com/stretchr/testify/assert"
)

func kindErr(kind storage.ErrorKind) error {
	return storage.NewError(kind, "test", "key", errors.New("boom"))
}

func TestRetryable(t *testing.T) {
	p := Default()

	assert.True(t, p.Retryable(kindErr(storage.KindNetwork)))
	assert.True(t, p.Retryable(kindErr(storage.KindQuota)))
	assert.True(t, p.Retryable(kindErr(storage.KindChecksumMismatch)))

	assert.False(t, p.Retryable(kindErr(storage.KindAuth)))
	assert.False(t, p.Retryable(kindErr(storage.KindConfig)))
	assert.False(t, p.Retryable(kindErr(storage.KindNotFound)))
}

func TestRetryableWrapped(t *testing.T) {
	p := Default()
	err := fmt.Errorf("transfer a/b: %w", kindErr(storage.KindQuota))
	assert.True(t, p.Retryable(err))
}

func TestFatal(t *testing.T) {
	p := Default()

	assert.True(t, p.Fatal(kindErr(storage.KindAuth)))
	assert.True(t, p.Fatal(kindErr(storage.KindConfig)))
	assert.False(t, p.Fatal(kindErr(storage.KindNetwork)))
	assert.False(t, p.Fatal(kindErr(storage.KindNotFound)))
}

func TestUnclassifiedErrorIsTransient(t *testing.T) {
	p := Default()
	assert.True(t, p.Retryable(errors.New("connection reset by peer")))
	assert.False(t, p.Fatal(errors.New("connection reset by peer")))
}

func TestBackoffGrows(t *testing.T) {
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Second,
		QuotaFactor: 4.0,
	}
	err := kindErr(storage.KindNetwork)

	// Jitter adds up to 50%, so each attempt's delay sits in a known band.
	for attempt, base := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
	} {
		d := p.Backoff(attempt, err)
		assert.GreaterOrEqual(t, d, base, "attempt %d", attempt)
		assert.LessOrEqual(t, d, base+base/2, "attempt %d", attempt)
	}
}

func TestBackoffCapped(t *testing.T) {
	p := Policy{
		MaxAttempts: 10,
		BaseDelay:   1 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    5 * time.Second,
		QuotaFactor: 4.0,
	}
	d := p.Backoff(9, kindErr(storage.KindNetwork))
	assert.LessOrEqual(t, d, 5*time.Second+5*time.Second/2)
}

func TestBackoffQuotaStretched(t *testing.T) {
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    time.Minute,
		QuotaFactor: 4.0,
	}
	d := p.Backoff(1, kindErr(storage.KindQuota))
	assert.GreaterOrEqual(t, d, 400*time.Millisecond)
}
