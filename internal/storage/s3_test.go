package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithContextCompletes(t *testing.T) {
	ran := false
	err := callWithContext(context.Background(), func() { ran = true })
	assert.NoError(t, err)
	assert.True(t, ran)
}

func TestCallWithContextAbandonsStalledCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := callWithContext(ctx, func() { <-release })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	// A deadline on a listing call must come back retryable.
	assert.Equal(t, KindNetwork, KindOf(classifyS3("s3.list", "", err)))
}
