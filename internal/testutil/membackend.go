// Package testutil provides in-memory test doubles for the storage layer.
package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"ceph2swift/internal/storage"
)

// MemObject is one stored object.
type MemObject struct {
	Data         []byte
	ContentType  string
	Metadata     map[string]string
	ETag         string
	LastModified time.Time
}

// MemBackend is an in-memory storage.Backend with marker-style pagination
// and hook-based fault injection.
type MemBackend struct {
	mu      sync.Mutex
	objects map[string]MemObject

	// PageSize bounds listing pages; zero means everything in one page.
	PageSize int

	// Hooks run before the corresponding operation; a non-nil return is
	// surfaced to the caller. The int argument counts calls from 1.
	ListHook  func(call int) error
	ReadHook  func(key string, call int) error
	WriteHook func(key string, call int) error
	HeadHook  func(key string, call int) error

	// CorruptKeys flips a byte of these objects as they are stored, to
	// simulate in-flight or at-rest corruption.
	CorruptKeys map[string]bool

	listCalls  int
	readCalls  map[string]int
	writeCalls map[string]int
	headCalls  map[string]int

	inflight    int
	maxInflight int
}

// NewMemBackend creates an empty backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		objects:    make(map[string]MemObject),
		readCalls:  make(map[string]int),
		writeCalls: make(map[string]int),
		headCalls:  make(map[string]int),
	}
}

// Put seeds an object; the ETag defaults to the content MD5.
func (b *MemBackend) Put(key string, data []byte) {
	b.PutObject(key, MemObject{Data: data})
}

// PutObject seeds a fully specified object.
func (b *MemBackend) PutObject(key string, obj MemObject) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if obj.ETag == "" {
		obj.ETag = contentMD5(obj.Data)
	}
	if obj.ContentType == "" {
		obj.ContentType = "application/octet-stream"
	}
	if obj.LastModified.IsZero() {
		obj.LastModified = time.Now()
	}
	b.objects[key] = obj
}

// Object returns a stored object and whether it exists.
func (b *MemBackend) Object(key string) (MemObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Len returns the number of stored objects.
func (b *MemBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// WriteCalls reports how many writes were opened for key.
func (b *MemBackend) WriteCalls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeCalls[key]
}

// ReadCalls reports how many reads were opened for key.
func (b *MemBackend) ReadCalls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readCalls[key]
}

// ListCalls reports how many listing pages were requested.
func (b *MemBackend) ListCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

// MaxInflight reports the peak number of concurrent writes observed.
func (b *MemBackend) MaxInflight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInflight
}

func (b *MemBackend) sortedKeys() []string {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List implements marker-based pagination like Swift: the token is the last
// key of the previous page.
func (b *MemBackend) List(ctx context.Context, token string) (storage.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listCalls++
	if b.ListHook != nil {
		if err := b.ListHook(b.listCalls); err != nil {
			return storage.Page{}, err
		}
	}

	keys := b.sortedKeys()
	start := 0
	if token != "" {
		start = sort.SearchStrings(keys, token)
		if start < len(keys) && keys[start] == token {
			start++
		}
	}

	end := len(keys)
	pageSize := b.PageSize
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}

	var page storage.Page
	for _, k := range keys[start:end] {
		obj := b.objects[k]
		page.Objects = append(page.Objects, storage.ObjectInfo{
			Key:          k,
			Size:         int64(len(obj.Data)),
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
			ContentType:  obj.ContentType,
			Metadata:     obj.Metadata,
		})
	}
	if end < len(keys) {
		page.Truncated = true
		page.NextToken = keys[end-1]
	}
	return page, nil
}

func (b *MemBackend) OpenRead(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.readCalls[key]++
	if b.ReadHook != nil {
		if err := b.ReadHook(key, b.readCalls[key]); err != nil {
			return nil, storage.ObjectInfo{}, err
		}
	}

	obj, ok := b.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.NewError(storage.KindNotFound, "mem.read", key, fmt.Errorf("no such object"))
	}
	info := storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.Data)),
		ETag:         obj.ETag,
		LastModified: obj.LastModified,
		ContentType:  obj.ContentType,
		Metadata:     obj.Metadata,
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), info, nil
}

func (b *MemBackend) OpenWrite(ctx context.Context, key string, opts storage.PutOptions) (storage.WriteSink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writeCalls[key]++
	if b.WriteHook != nil {
		if err := b.WriteHook(key, b.writeCalls[key]); err != nil {
			return nil, err
		}
	}

	b.inflight++
	if b.inflight > b.maxInflight {
		b.maxInflight = b.inflight
	}
	return &memSink{backend: b, key: key, opts: opts}, nil
}

func (b *MemBackend) HeadChecksum(ctx context.Context, key string) (string, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.headCalls[key]++
	if b.HeadHook != nil {
		if err := b.HeadHook(key, b.headCalls[key]); err != nil {
			return "", 0, err
		}
	}

	obj, ok := b.objects[key]
	if !ok {
		return "", 0, storage.NewError(storage.KindNotFound, "mem.head", key, fmt.Errorf("no such object"))
	}
	return obj.ETag, int64(len(obj.Data)), nil
}

type memSink struct {
	backend *MemBackend
	key     string
	opts    storage.PutOptions
	buf     bytes.Buffer
	etag    string
	closed  bool
}

func (s *memSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *memSink) Close() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.backend.inflight--

	data := append([]byte(nil), s.buf.Bytes()...)
	if s.backend.CorruptKeys[s.key] && len(data) > 0 {
		data[0] ^= 0xff
	}
	obj := MemObject{
		Data:         data,
		ContentType:  s.opts.ContentType,
		Metadata:     s.opts.Metadata,
		ETag:         contentMD5(data),
		LastModified: time.Now(),
	}
	s.backend.objects[s.key] = obj
	s.etag = obj.ETag
	return nil
}

func (s *memSink) Abort() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.backend.inflight--
	return nil
}

func (s *memSink) Checksum() string { return s.etag }

func contentMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
