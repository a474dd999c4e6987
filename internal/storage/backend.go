package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the uniform capability surface over a remote object store.
// Implementations keep no local state; every method is a network call whose
// errors are classified into the taxonomy in errors.go.
type Backend interface {
	// List returns one page of objects starting after the given continuation
	// token. An empty token means the first page. When Page.Truncated is
	// false the listing is exhausted.
	List(ctx context.Context, token string) (Page, error)

	// OpenRead streams an object's content. The returned info reflects the
	// store's current view of the object.
	OpenRead(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// OpenWrite opens a streaming sink for an object. The write is finalized
	// by Close; Checksum is valid only after a successful Close.
	OpenWrite(ctx context.Context, key string, opts PutOptions) (WriteSink, error)

	// HeadChecksum fetches the store-reported checksum and size for a key,
	// or a not-found classified error.
	HeadChecksum(ctx context.Context, key string) (string, int64, error)
}

// WriteSink is a writable object stream. Exactly one of Close or Abort must
// be called.
type WriteSink interface {
	io.Writer

	// Close finalizes the upload and makes Checksum available.
	Close() error

	// Abort cancels the upload and removes any partial object, best effort.
	Abort() error

	// Checksum returns the checksum the destination store computed for the
	// uploaded bytes.
	Checksum() string
}

// ObjectInfo describes one object as listed or stat'ed.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// Page is one chunk of a resumable listing.
type Page struct {
	Objects   []ObjectInfo
	NextToken string
	Truncated bool
}

// PutOptions carries the metadata preserved across the copy.
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}
