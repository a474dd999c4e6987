package worker

import "time"

// Task is one object to migrate, as listed from the source.
type Task struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time

	// VerifyOnly re-checks an object already recorded as done instead of
	// transferring it. Set by the --verify-done admission path.
	VerifyOnly bool
}

// Config tunes the workers.
type Config struct {
	// MaxAttempts is the total attempts per object within a run.
	MaxAttempts int

	// TransferTimeout bounds one transfer attempt, verification included.
	TransferTimeout time.Duration

	// SkipExisting short-circuits objects whose destination copy already
	// matches by checksum and size.
	SkipExisting bool
}
