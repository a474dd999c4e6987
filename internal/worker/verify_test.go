package worker

import (
	"context"
	"testing"

	"ceph2swift/internal/storage"
	"ceph2swift/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPlainMD5Match(t *testing.T) {
	v := NewVerifier(testutil.NewMemBackend(), testutil.NewMemBackend())

	data := []byte("hello world")
	err := v.Verify(context.Background(), Task{Key: "k", Size: int64(len(data)), ETag: md5hex(data)}, md5hex(data))
	assert.NoError(t, err)
}

func TestVerifyPlainMD5CaseInsensitive(t *testing.T) {
	v := NewVerifier(testutil.NewMemBackend(), testutil.NewMemBackend())

	data := []byte("hello")
	upper := "5D41402ABC4B2A76B9719D911017C592"
	require.Equal(t, md5hex(data), "5d41402abc4b2a76b9719d911017c592")

	err := v.Verify(context.Background(), Task{Key: "k", Size: 5, ETag: upper}, md5hex(data))
	assert.NoError(t, err)
}

func TestVerifyPlainMD5Mismatch(t *testing.T) {
	v := NewVerifier(testutil.NewMemBackend(), testutil.NewMemBackend())

	err := v.Verify(context.Background(), Task{
		Key:  "k",
		Size: 5,
		ETag: "00000000000000000000000000000000",
	}, md5hex([]byte("hello")))
	require.Error(t, err)
	assert.Equal(t, storage.KindChecksumMismatch, storage.KindOf(err))
}

func TestVerifyCompositeETagFallsBackToContent(t *testing.T) {
	dst := testutil.NewMemBackend()
	v := NewVerifier(testutil.NewMemBackend(), dst)

	data := []byte("multipart upload content")
	dst.Put("k", data)

	// A multipart ETag like "abc-3" is not comparable to a content MD5, so
	// verification re-reads the destination.
	err := v.Verify(context.Background(), Task{
		Key:  "k",
		Size: int64(len(data)),
		ETag: "9e107d9d372bb6826bd81d3542a419d6-3",
	}, md5hex(data))
	assert.NoError(t, err)
	assert.Equal(t, 1, dst.ReadCalls("k"))
}

func TestVerifyCompositeETagSizeMismatch(t *testing.T) {
	dst := testutil.NewMemBackend()
	v := NewVerifier(testutil.NewMemBackend(), dst)

	dst.Put("k", []byte("short"))

	err := v.Verify(context.Background(), Task{Key: "k", Size: 999, ETag: "abc-2"}, "whatever")
	require.Error(t, err)
	assert.Equal(t, storage.KindChecksumMismatch, storage.KindOf(err))
}

func TestVerifyCompositeETagContentMismatch(t *testing.T) {
	dst := testutil.NewMemBackend()
	v := NewVerifier(testutil.NewMemBackend(), dst)

	stored := []byte("corrupted content")
	dst.Put("k", stored)

	err := v.Verify(context.Background(), Task{
		Key:  "k",
		Size: int64(len(stored)),
		ETag: "abc-2",
	}, md5hex([]byte("original content!")))
	require.Error(t, err)
	assert.Equal(t, storage.KindChecksumMismatch, storage.KindOf(err))
}

func TestVerifyDestinationMissingIsMismatch(t *testing.T) {
	v := NewVerifier(testutil.NewMemBackend(), testutil.NewMemBackend())

	err := v.Verify(context.Background(), Task{Key: "gone", Size: 3, ETag: "abc-2"}, "whatever")
	require.Error(t, err)
	assert.Equal(t, storage.KindChecksumMismatch, storage.KindOf(err))
}

func TestVerifyExisting(t *testing.T) {
	dst := testutil.NewMemBackend()
	v := NewVerifier(testutil.NewMemBackend(), dst)

	data := []byte("stable content")
	dst.Put("k", data)

	task := Task{Key: "k", Size: int64(len(data))}

	assert.NoError(t, v.VerifyExisting(context.Background(), task, md5hex(data)))

	err := v.VerifyExisting(context.Background(), task, "00000000000000000000000000000000")
	require.Error(t, err)
	assert.Equal(t, storage.KindChecksumMismatch, storage.KindOf(err))

	err = v.VerifyExisting(context.Background(), Task{Key: "gone", Size: 1}, "")
	require.Error(t, err)
	assert.Equal(t, storage.KindChecksumMismatch, storage.KindOf(err))
}
