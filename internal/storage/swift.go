package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ncw/swift/v2"
)

const swiftPageSize = 1000

// SwiftConfig configures one Swift-compatible endpoint plus the container
// the run is bound to. Immutable for the life of the backend.
type SwiftConfig struct {
	AuthURL     string
	Username    string
	APIKey      string
	Tenant      string
	Domain      string
	Region      string
	Container   string
	AuthVersion int
}

// SwiftBackend implements Backend against an OpenStack Swift endpoint using
// ncw/swift.
type SwiftBackend struct {
	conn      *swift.Connection
	container string
}

// NewSwiftBackend creates a backend bound to one container and authenticates
// the connection eagerly so credential problems surface before any transfer
// starts.
func NewSwiftBackend(ctx context.Context, cfg SwiftConfig) (*SwiftBackend, error) {
	if cfg.AuthURL == "" {
		return nil, NewError(KindConfig, "swift.new", "", fmt.Errorf("auth url is required"))
	}
	conn := &swift.Connection{
		UserName:    cfg.Username,
		ApiKey:      cfg.APIKey,
		AuthUrl:     cfg.AuthURL,
		Tenant:      cfg.Tenant,
		Domain:      cfg.Domain,
		Region:      cfg.Region,
		AuthVersion: cfg.AuthVersion,
		Timeout:     5 * time.Minute,
	}
	if err := conn.Authenticate(ctx); err != nil {
		return nil, classifySwift("swift.auth", "", err)
	}
	return &SwiftBackend{conn: conn, container: cfg.Container}, nil
}

// List maps Swift's marker-based listing onto continuation tokens: the token
// is the name of the last object of the previous page.
func (b *SwiftBackend) List(ctx context.Context, token string) (Page, error) {
	objects, err := b.conn.Objects(ctx, b.container, &swift.ObjectsOpts{
		Marker: token,
		Limit:  swiftPageSize,
	})
	if err != nil {
		return Page{}, classifySwift("swift.list", "", err)
	}

	page := Page{Objects: make([]ObjectInfo, 0, len(objects))}
	for _, obj := range objects {
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          obj.Name,
			Size:         obj.Bytes,
			ETag:         obj.Hash,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
		})
	}
	if len(objects) == swiftPageSize {
		page.Truncated = true
		page.NextToken = objects[len(objects)-1].Name
	}
	return page, nil
}

// OpenRead heads the object for its metadata, then opens the content stream.
func (b *SwiftBackend) OpenRead(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, headers, err := b.conn.Object(ctx, b.container, key)
	if err != nil {
		return nil, ObjectInfo{}, classifySwift("swift.read", key, err)
	}
	file, _, err := b.conn.ObjectOpen(ctx, b.container, key, false, nil)
	if err != nil {
		return nil, ObjectInfo{}, classifySwift("swift.read", key, err)
	}
	return file, ObjectInfo{
		Key:          key,
		Size:         obj.Bytes,
		ETag:         obj.Hash,
		LastModified: obj.LastModified,
		ContentType:  obj.ContentType,
		Metadata:     map[string]string(headers.ObjectMetadata()),
	}, nil
}

// OpenWrite streams into ObjectCreate. The store-side MD5 is fetched by a
// HEAD after Close, since Swift only reveals the etag once the object lands.
func (b *SwiftBackend) OpenWrite(ctx context.Context, key string, opts PutOptions) (WriteSink, error) {
	headers := swift.Metadata(opts.Metadata).ObjectHeaders()
	file, err := b.conn.ObjectCreate(ctx, b.container, key, false, "", opts.ContentType, headers)
	if err != nil {
		return nil, classifySwift("swift.write", key, err)
	}
	return &swiftSink{backend: b, ctx: ctx, key: key, file: file}, nil
}

// HeadChecksum returns the object's MD5 hash and size, Swift's etag.
func (b *SwiftBackend) HeadChecksum(ctx context.Context, key string) (string, int64, error) {
	obj, _, err := b.conn.Object(ctx, b.container, key)
	if err != nil {
		return "", 0, classifySwift("swift.head", key, err)
	}
	return obj.Hash, obj.Bytes, nil
}

type swiftSink struct {
	backend *SwiftBackend
	ctx     context.Context
	key     string
	file    *swift.ObjectCreateFile
	etag    string
}

func (s *swiftSink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	if err != nil {
		return n, classifySwift("swift.write", s.key, err)
	}
	return n, nil
}

func (s *swiftSink) Close() error {
	if err := s.file.Close(); err != nil {
		return classifySwift("swift.write", s.key, err)
	}
	obj, _, err := s.backend.conn.Object(s.ctx, s.backend.container, s.key)
	if err != nil {
		return classifySwift("swift.write", s.key, err)
	}
	s.etag = obj.Hash
	return nil
}

func (s *swiftSink) Abort() error {
	_ = s.file.Close()
	// Remove the partial object so a retry starts clean.
	_ = s.backend.conn.ObjectDelete(s.ctx, s.backend.container, s.key)
	return nil
}

func (s *swiftSink) Checksum() string { return s.etag }
