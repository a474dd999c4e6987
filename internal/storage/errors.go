package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/ncw/swift/v2"
)

// ErrorKind classifies every error a backend can surface. Callers branch on
// the kind, never on backend-specific error types.
type ErrorKind string

const (
	KindConfig           ErrorKind = "config"
	KindAuth             ErrorKind = "auth"
	KindNetwork          ErrorKind = "network"
	KindQuota            ErrorKind = "quota"
	KindNotFound         ErrorKind = "not_found"
	KindChecksumMismatch ErrorKind = "checksum_mismatch"
)

// Error wraps a backend failure with its taxonomy kind.
type Error struct {
	Kind ErrorKind
	Op   string
	Key  string
	Err  error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error for the given operation and key.
func NewError(kind ErrorKind, op, key string, err error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: err}
}

// KindOf extracts the taxonomy kind from an error chain. Unclassified errors
// are treated as network errors, the only safe default for remote I/O.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindNetwork
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsFatal reports whether err means the whole run is misconfigured.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindAuth || k == KindConfig
}

// classifyS3 maps minio-go errors onto the taxonomy.
func classifyS3(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindNetwork, op, key, err)
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return NewError(KindNotFound, op, key, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
		"AccountProblem", "ExpiredToken":
		return NewError(KindAuth, op, key, err)
	case "SlowDown", "QuotaExceeded", "ServiceUnavailable", "TooManyRequests":
		return NewError(KindQuota, op, key, err)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return NewError(KindNotFound, op, key, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return NewError(KindAuth, op, key, err)
	case http.StatusTooManyRequests, http.StatusInsufficientStorage:
		return NewError(KindQuota, op, key, err)
	}
	return NewError(KindNetwork, op, key, err)
}

// classifySwift maps ncw/swift errors onto the taxonomy.
func classifySwift(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindNetwork, op, key, err)
	}
	if errors.Is(err, swift.ObjectNotFound) || errors.Is(err, swift.ContainerNotFound) {
		return NewError(KindNotFound, op, key, err)
	}
	if errors.Is(err, swift.AuthorizationFailed) || errors.Is(err, swift.Forbidden) {
		return NewError(KindAuth, op, key, err)
	}
	var se *swift.Error
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound:
			return NewError(KindNotFound, op, key, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return NewError(KindAuth, op, key, err)
		case http.StatusTooManyRequests, http.StatusRequestEntityTooLarge,
			http.StatusInsufficientStorage:
			return NewError(KindQuota, op, key, err)
		}
	}
	return NewError(KindNetwork, op, key, err)
}
