package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const s3PageSize = 1000

// S3Config configures one S3-compatible endpoint plus the bucket the run is
// bound to. Immutable for the life of the backend.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Secure    bool
}

// S3Backend implements Backend against an S3-compatible gateway (Ceph RGW,
// MinIO) using minio-go.
type S3Backend struct {
	client *minio.Client
	core   *minio.Core
	bucket string
}

// NewS3Backend creates a backend bound to one bucket.
func NewS3Backend(cfg S3Config) (*S3Backend, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, NewError(KindConfig, "s3.new", "", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, NewError(KindConfig, "s3.new", "", err)
	}

	return &S3Backend{
		client: client,
		core:   &minio.Core{Client: client},
		bucket: cfg.Bucket,
	}, nil
}

// cleanEndpoint removes protocol and path from an endpoint URL to get the
// host:port form minio-go expects.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have a path, only host:port is allowed (got path: %s)", parsedURL.Path)
	}
	return parsedURL.Host, nil
}

// List fetches one page via ListObjectsV2 so the continuation token can be
// persisted and the listing restarted mid-way. The SDK call takes no
// context, so it is raced against ctx: a stalled connection surfaces as a
// network error when the page deadline fires instead of hanging the run.
func (b *S3Backend) List(ctx context.Context, token string) (Page, error) {
	var res minio.ListBucketV2Result
	var listErr error
	if err := callWithContext(ctx, func() {
		res, listErr = b.core.ListObjectsV2(b.bucket, "", "", token, "", s3PageSize)
	}); err != nil {
		return Page{}, classifyS3("s3.list", "", err)
	}
	if listErr != nil {
		return Page{}, classifyS3("s3.list", "", listErr)
	}

	page := Page{
		NextToken: res.NextContinuationToken,
		Truncated: res.IsTruncated,
		Objects:   make([]ObjectInfo, 0, len(res.Contents)),
	}
	for _, obj := range res.Contents {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         trimETag(obj.ETag),
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
			Metadata:     obj.UserMetadata,
		})
	}
	return page, nil
}

// OpenRead streams the object and stats it so the caller gets content type
// and custom metadata alongside the bytes.
func (b *S3Backend) OpenRead(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, classifyS3("s3.read", key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, ObjectInfo{}, classifyS3("s3.read", key, err)
	}
	return obj, ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ETag:         trimETag(stat.ETag),
		LastModified: stat.LastModified,
		ContentType:  stat.ContentType,
		Metadata:     stat.UserMetadata,
	}, nil
}

// OpenWrite bridges minio-go's reader-based PutObject into a writable sink
// with an io.Pipe. The upload goroutine owns the read side; Close flushes
// the pipe and waits for PutObject to finish.
func (b *S3Backend) OpenWrite(ctx context.Context, key string, opts PutOptions) (WriteSink, error) {
	pr, pw := io.Pipe()
	sink := &s3Sink{
		backend: b,
		ctx:     ctx,
		key:     key,
		pw:      pw,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(sink.done)
		info, err := b.client.PutObject(ctx, b.bucket, key, pr, opts.Size, minio.PutObjectOptions{
			ContentType:  opts.ContentType,
			UserMetadata: opts.Metadata,
		})
		if err != nil {
			sink.err = classifyS3("s3.write", key, err)
			pr.CloseWithError(sink.err)
			return
		}
		sink.etag = trimETag(info.ETag)
	}()

	return sink, nil
}

// HeadChecksum stats the object and returns its ETag and size.
func (b *S3Backend) HeadChecksum(ctx context.Context, key string) (string, int64, error) {
	info, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return "", 0, classifyS3("s3.head", key, err)
	}
	return trimETag(info.ETag), info.Size, nil
}

type s3Sink struct {
	backend *S3Backend
	ctx     context.Context
	key     string
	pw      *io.PipeWriter
	done    chan struct{}
	err     error
	etag    string
}

func (s *s3Sink) Write(p []byte) (int, error) {
	return s.pw.Write(p)
}

func (s *s3Sink) Close() error {
	s.pw.Close()
	<-s.done
	return s.err
}

func (s *s3Sink) Abort() error {
	s.pw.CloseWithError(io.ErrClosedPipe)
	<-s.done
	// Remove whatever partial object may have landed.
	_ = s.backend.client.RemoveObject(s.ctx, s.backend.bucket, s.key, minio.RemoveObjectOptions{})
	return nil
}

func (s *s3Sink) Checksum() string { return s.etag }

// trimETag strips the quotes S3 wraps around ETag values.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// callWithContext runs fn on its own goroutine and abandons it when ctx
// expires. Needed for SDK calls that take no context; the abandoned call
// unwinds on its own once the underlying connection dies.
func callWithContext(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
