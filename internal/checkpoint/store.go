package checkpoint

import (
	"time"

	"ceph2swift/internal/storage"
)

// Status is the migration state of one object key.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Record is the durable per-key migration state. It is owned by the Store
// and mutated only through Save.
//
// Transitions only move forward: pending -> in_progress -> done, or
// in_progress -> pending (retryable failure), or in_progress -> failed with
// Terminal set. done and terminal failed are sinks. DstChecksum is set
// exactly when Status is done.
type Record struct {
	Key         string
	Size        int64
	ETag        string
	Status      Status
	Attempts    int
	ErrorKind   storage.ErrorKind
	LastError   string
	DstChecksum string
	Terminal    bool
	UpdatedAt   time.Time
}

// Counts is the aggregate view used for the final summary.
type Counts struct {
	Pending    int64
	InProgress int64
	Done       int64
	Failed     int64
}

// Store persists Records with atomic per-key updates and supports full
// reload across process restarts.
type Store interface {
	// Get returns the record for key, or nil if none exists.
	Get(key string) (*Record, error)

	// Save upserts a record atomically. Terminal records are never
	// overwritten.
	Save(record *Record) error

	// ResetInProgress rewinds records a crash left in_progress back to
	// pending so the next run retries them.
	ResetInProgress() (int64, error)

	// ResetAll rewinds every record, terminal failures included, back to
	// pending; used by --force to re-transfer everything.
	ResetAll() error

	// Reset rewinds one record to pending regardless of sink status. Used
	// when --verify-done finds a done record whose destination content no
	// longer matches.
	Reset(key string) error

	// Counts aggregates record counts by status.
	Counts() (Counts, error)

	// ListFailed returns every terminally failed record.
	ListFailed() ([]*Record, error)

	Close() error
}
