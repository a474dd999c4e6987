package worker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"ceph2swift/internal/storage"
)

// DefaultChunkSize is the copy buffer size. Objects stream through in
// chunks of this size, so memory use is constant regardless of object size.
const DefaultChunkSize = 1 << 20

// Transferer copies one object from source to destination, preserving
// content type and custom metadata, and computes an independent MD5 of the
// bytes in flight to catch corruption neither store would report.
type Transferer struct {
	src       storage.Backend
	dst       storage.Backend
	chunkSize int
}

// NewTransferer builds a transferer over the two backends.
func NewTransferer(src, dst storage.Backend) *Transferer {
	return &Transferer{src: src, dst: dst, chunkSize: DefaultChunkSize}
}

// Transfer copies the object and returns the MD5 computed from the streamed
// bytes. The returned checksum is independent of whatever either backend
// reports.
func (t *Transferer) Transfer(ctx context.Context, task Task) (string, error) {
	reader, info, err := t.src.OpenRead(ctx, task.Key)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	contentType := task.ContentType
	if contentType == "" {
		contentType = info.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	metadata := task.Metadata
	if metadata == nil {
		metadata = info.Metadata
	}

	sink, err := t.dst.OpenWrite(ctx, task.Key, storage.PutOptions{
		Size:        task.Size,
		ContentType: contentType,
		Metadata:    metadata,
	})
	if err != nil {
		return "", err
	}

	hasher := md5.New()
	buf := make([]byte, t.chunkSize)
	written, err := io.CopyBuffer(sink, io.TeeReader(reader, hasher), buf)
	if err != nil {
		sink.Abort()
		return "", fmt.Errorf("copy %s: %w", task.Key, err)
	}
	if written != task.Size {
		sink.Abort()
		return "", storage.NewError(storage.KindNetwork, "copy", task.Key,
			fmt.Errorf("short transfer: wrote %d of %d bytes", written, task.Size))
	}

	if err := sink.Close(); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
