package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerAccumulatesOutcomes(t *testing.T) {
	tr := NewTracker()

	tr.AddDone(100)
	tr.AddDone(50)
	tr.AddFailed()
	tr.AddSkipped(25)

	s := tr.GetStatus()
	assert.Equal(t, int64(2), s.DoneObjects)
	assert.Equal(t, int64(1), s.FailedObjects)
	assert.Equal(t, int64(1), s.SkippedObjects)
	assert.Equal(t, int64(4), s.ProcessedObjects)
	assert.Equal(t, int64(150), s.ProcessedBytes)
	assert.Equal(t, int64(25), s.SkippedBytes)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "3.0 GB", FormatBytes(3*1024*1024*1024))
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "100.0 B/s", FormatSpeed(100))
	assert.Equal(t, "1.0 MB/s", FormatSpeed(1024*1024))
}
