package app

import (
	"ceph2swift/internal/storage"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FailedObject is one terminally failed key in the final summary.
type FailedObject struct {
	Key      string
	Kind     storage.ErrorKind
	Attempts int
	Error    string
}

// Summary is the final accounting of a run.
type Summary struct {
	Done    int64
	Failed  int64
	Skipped int64

	// Planned counts are filled by dry runs instead of the outcome counts.
	PlannedObjects int64
	PlannedBytes   int64

	FailedObjects []FailedObject
}

// Degraded reports whether the run should exit non-zero.
func (s Summary) Degraded() bool {
	return s.Failed > 0
}

// Log writes the summary, enumerating every failed key with its terminal
// error kind and attempt count.
func (s Summary) Log(logger *zap.Logger) {
	logger.Info("Migration summary",
		zap.Int64("done", s.Done),
		zap.Int64("failed", s.Failed),
		zap.Int64("skipped", s.Skipped),
	)
	for _, f := range s.FailedObjects {
		logger.Error("Failed object",
			zap.String("key", f.Key),
			zap.String("kind", string(f.Kind)),
			zap.Int("attempts", f.Attempts),
			zap.String("error", f.Error),
		)
	}
}

// MarshalLogObject lets a Summary be attached to a log line as one field.
func (s Summary) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("done", s.Done)
	enc.AddInt64("failed", s.Failed)
	enc.AddInt64("skipped", s.Skipped)
	return nil
}
