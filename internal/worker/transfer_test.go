package worker

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"

	"ceph2swift/internal/storage"
	"ceph2swift/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestTransferCopiesBytesAndMetadata(t *testing.T) {
	src := testutil.NewMemBackend()
	dst := testutil.NewMemBackend()

	data := bytes.Repeat([]byte("payload"), 1024)
	src.PutObject("docs/report.pdf", testutil.MemObject{
		Data:        data,
		ContentType: "application/pdf",
		Metadata:    map[string]string{"owner": "alice"},
	})

	tr := NewTransferer(src, dst)
	checksum, err := tr.Transfer(context.Background(), Task{
		Key:         "docs/report.pdf",
		Size:        int64(len(data)),
		ETag:        md5hex(data),
		ContentType: "application/pdf",
		Metadata:    map[string]string{"owner": "alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, md5hex(data), checksum)

	obj, ok := dst.Object("docs/report.pdf")
	require.True(t, ok)
	assert.Equal(t, data, obj.Data)
	assert.Equal(t, "application/pdf", obj.ContentType)
	assert.Equal(t, map[string]string{"owner": "alice"}, obj.Metadata)
}

func TestTransferEmptyObject(t *testing.T) {
	src := testutil.NewMemBackend()
	dst := testutil.NewMemBackend()
	src.Put("empty", nil)

	tr := NewTransferer(src, dst)
	checksum, err := tr.Transfer(context.Background(), Task{Key: "empty", Size: 0})
	require.NoError(t, err)
	assert.Equal(t, md5hex(nil), checksum)

	obj, ok := dst.Object("empty")
	require.True(t, ok)
	assert.Empty(t, obj.Data)
}

func TestTransferLargeObjectStreams(t *testing.T) {
	src := testutil.NewMemBackend()
	dst := testutil.NewMemBackend()

	// Larger than the chunk size so multiple copy iterations happen.
	data := bytes.Repeat([]byte{0xab}, 3*DefaultChunkSize+17)
	src.Put("big", data)

	tr := NewTransferer(src, dst)
	checksum, err := tr.Transfer(context.Background(), Task{Key: "big", Size: int64(len(data))})
	require.NoError(t, err)
	assert.Equal(t, md5hex(data), checksum)

	obj, _ := dst.Object("big")
	assert.Equal(t, len(data), len(obj.Data))
}

func TestTransferSourceMissing(t *testing.T) {
	src := testutil.NewMemBackend()
	dst := testutil.NewMemBackend()

	tr := NewTransferer(src, dst)
	_, err := tr.Transfer(context.Background(), Task{Key: "gone", Size: 1})
	require.Error(t, err)
	assert.Equal(t, storage.KindNotFound, storage.KindOf(err))
}

func TestTransferWriteFailure(t *testing.T) {
	src := testutil.NewMemBackend()
	dst := testutil.NewMemBackend()
	src.Put("k", []byte("data"))
	dst.WriteHook = func(key string, call int) error {
		return storage.NewError(storage.KindQuota, "mem.write", key, assert.AnError)
	}

	tr := NewTransferer(src, dst)
	_, err := tr.Transfer(context.Background(), Task{Key: "k", Size: 4})
	require.Error(t, err)
	assert.Equal(t, storage.KindQuota, storage.KindOf(err))

	_, ok := dst.Object("k")
	assert.False(t, ok)
}

func TestTransferShortReadFails(t *testing.T) {
	src := testutil.NewMemBackend()
	dst := testutil.NewMemBackend()
	src.Put("k", []byte("data"))

	tr := NewTransferer(src, dst)
	// Declared size larger than actual content means an interrupted source
	// stream; the transfer must not silently succeed.
	_, err := tr.Transfer(context.Background(), Task{Key: "k", Size: 10})
	require.Error(t, err)
	assert.Equal(t, storage.KindNetwork, storage.KindOf(err))
}
