package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/ncw/swift/v2"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	base := NewError(KindQuota, "s3.write", "k", errors.New("slow down"))
	wrapped := fmt.Errorf("transfer k: %w", base)

	assert.Equal(t, KindQuota, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindQuota))
}

func TestKindOfUnclassifiedDefaultsToNetwork(t *testing.T) {
	assert.Equal(t, KindNetwork, KindOf(errors.New("connection reset")))
}

func TestKindOfDeadlineIsNetwork(t *testing.T) {
	assert.Equal(t, KindNetwork, KindOf(context.DeadlineExceeded))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(NewError(KindAuth, "op", "", errors.New("denied"))))
	assert.True(t, IsFatal(NewError(KindConfig, "op", "", errors.New("bad endpoint"))))
	assert.False(t, IsFatal(NewError(KindNetwork, "op", "", errors.New("reset"))))
	assert.False(t, IsFatal(nil))
}

func TestClassifyS3(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}, KindNotFound},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, KindAuth},
		{"bad signature", minio.ErrorResponse{Code: "SignatureDoesNotMatch", StatusCode: 403}, KindAuth},
		{"slow down", minio.ErrorResponse{Code: "SlowDown", StatusCode: 503}, KindQuota},
		{"server error", minio.ErrorResponse{Code: "InternalError", StatusCode: 500}, KindNetwork},
		{"plain error", errors.New("dial tcp: timeout"), KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyS3("s3.op", "key", tt.err)
			assert.Equal(t, tt.want, KindOf(got))
		})
	}
}

func TestClassifySwift(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"object not found", swift.ObjectNotFound, KindNotFound},
		{"container not found", swift.ContainerNotFound, KindNotFound},
		{"auth failed", swift.AuthorizationFailed, KindAuth},
		{"forbidden", swift.Forbidden, KindAuth},
		{"too many requests", &swift.Error{StatusCode: 429, Text: "slow down"}, KindQuota},
		{"insufficient storage", &swift.Error{StatusCode: 507, Text: "full"}, KindQuota},
		{"server error", &swift.Error{StatusCode: 502, Text: "bad gateway"}, KindNetwork},
		{"plain error", errors.New("dial tcp: refused"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifySwift("swift.op", "key", tt.err)
			assert.Equal(t, tt.want, KindOf(got))
		})
	}
}

func TestClassifyNilPassesThrough(t *testing.T) {
	assert.NoError(t, classifyS3("op", "k", nil))
	assert.NoError(t, classifySwift("op", "k", nil))
}

func TestErrorMessageIncludesKindAndKey(t *testing.T) {
	err := NewError(KindNotFound, "s3.read", "docs/a.txt", errors.New("404"))
	assert.Contains(t, err.Error(), "docs/a.txt")
	assert.Contains(t, err.Error(), "not_found")
}

func TestTrimETag(t *testing.T) {
	assert.Equal(t, "abc123", trimETag(`"abc123"`))
	assert.Equal(t, "abc123", trimETag("abc123"))
}

func TestCleanEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"minio.example.com:9000", "minio.example.com:9000", false},
		{"https://s3.example.com", "s3.example.com", false},
		{"http://s3.example.com:9000/", "s3.example.com:9000", false},
		{"https://s3.example.com/path", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := cleanEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
