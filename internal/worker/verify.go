package worker

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"ceph2swift/internal/storage"
)

var plainMD5 = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Verifier confirms transferred content matches the source.
type Verifier struct {
	src storage.Backend
	dst storage.Backend
}

// NewVerifier builds a verifier over the two backends.
func NewVerifier(src, dst storage.Backend) *Verifier {
	return &Verifier{src: src, dst: dst}
}

// Verify checks the streamed checksum against the source's ETag. A plain
// MD5 ETag is compared directly. A composite ETag (multipart upload, has a
// part-count suffix) cannot be compared across stores, so verification
// falls back to size plus a content re-hash of the destination.
//
// Any failure comes back as a checksum-mismatch classified error, including
// a destination that vanished between transfer and verification.
func (v *Verifier) Verify(ctx context.Context, task Task, streamed string) error {
	if plainMD5.MatchString(task.ETag) {
		if strings.EqualFold(task.ETag, streamed) {
			return nil
		}
		return mismatch(task.Key, fmt.Errorf("source etag %s does not match streamed md5 %s", task.ETag, streamed))
	}
	return v.verifyByContent(ctx, task, streamed)
}

func (v *Verifier) verifyByContent(ctx context.Context, task Task, streamed string) error {
	_, size, err := v.dst.HeadChecksum(ctx, task.Key)
	if err != nil {
		if storage.IsKind(err, storage.KindNotFound) {
			return mismatch(task.Key, fmt.Errorf("destination object missing after transfer"))
		}
		return err
	}
	if size != task.Size {
		return mismatch(task.Key, fmt.Errorf("destination size %d does not match source size %d", size, task.Size))
	}

	reader, _, err := v.dst.OpenRead(ctx, task.Key)
	if err != nil {
		if storage.IsKind(err, storage.KindNotFound) {
			return mismatch(task.Key, fmt.Errorf("destination object missing after transfer"))
		}
		return err
	}
	defer reader.Close()

	hasher := md5.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return fmt.Errorf("re-read %s: %w", task.Key, err)
	}
	sum := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(sum, streamed) {
		return mismatch(task.Key, fmt.Errorf("destination content md5 %s does not match streamed md5 %s", sum, streamed))
	}
	return nil
}

// VerifyExisting re-checks an object previously recorded as done: the
// destination must still exist with the recorded checksum and the source's
// size.
func (v *Verifier) VerifyExisting(ctx context.Context, task Task, recorded string) error {
	sum, size, err := v.dst.HeadChecksum(ctx, task.Key)
	if err != nil {
		if storage.IsKind(err, storage.KindNotFound) {
			return mismatch(task.Key, fmt.Errorf("destination object missing"))
		}
		return err
	}
	if size != task.Size {
		return mismatch(task.Key, fmt.Errorf("destination size %d does not match source size %d", size, task.Size))
	}
	if recorded != "" && !strings.EqualFold(sum, recorded) {
		return mismatch(task.Key, fmt.Errorf("destination etag %s does not match recorded checksum %s", sum, recorded))
	}
	return nil
}

func mismatch(key string, err error) error {
	return storage.NewError(storage.KindChecksumMismatch, "verify", key, err)
}
