package app

import (
	"context"
	"strings"

	"ceph2swift/internal/storage"

	"go.uber.org/zap"
)

// directoryContentType marks zero-byte folder objects so Swift clients
// render key paths as a browsable tree.
const directoryContentType = "application/directory"

// markerWriter creates a folder-marker object in the destination for every
// path prefix of a key, once per run.
type markerWriter struct {
	dst    storage.Backend
	seen   map[string]struct{}
	logger *zap.Logger
}

func newMarkerWriter(dst storage.Backend, logger *zap.Logger) *markerWriter {
	return &markerWriter{
		dst:    dst,
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// ensure creates markers for every folder on key's path this run has not
// created yet. A marker failure is run-fatal only for auth/config errors;
// otherwise the object itself still transfers.
func (m *markerWriter) ensure(ctx context.Context, key string) error {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return nil
	}

	path := ""
	for _, part := range parts[:len(parts)-1] {
		if part == "" {
			continue
		}
		if path == "" {
			path = part
		} else {
			path = path + "/" + part
		}
		if _, ok := m.seen[path]; ok {
			continue
		}
		if err := m.create(ctx, path); err != nil {
			if storage.IsFatal(err) {
				return err
			}
			m.logger.Warn("Failed to create folder marker",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		m.seen[path] = struct{}{}
	}
	return nil
}

func (m *markerWriter) create(ctx context.Context, path string) error {
	sink, err := m.dst.OpenWrite(ctx, path, storage.PutOptions{
		ContentType: directoryContentType,
	})
	if err != nil {
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}
	m.logger.Debug("Folder marker created", zap.String("path", path))
	return nil
}
