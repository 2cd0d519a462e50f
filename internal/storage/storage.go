// Package storage stores attachment content on local disk or in a MinIO bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"

	"github.com/sumire/defects/internal/config"
)

// ErrNotExist is returned when an object is missing from the store.
var ErrNotExist = fs.ErrNotExist

// FileStore persists opaque objects under relative paths.
type FileStore interface {
	// Save stores r under path. Pass -1 as size when unknown.
	Save(ctx context.Context, path string, r io.Reader, size int64) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

type newStoreFunc func(ctx context.Context, cfg config.StorageConfig) (FileStore, error)

var storeTypes = map[string]newStoreFunc{
	"local": func(_ context.Context, cfg config.StorageConfig) (FileStore, error) {
		return NewLocal(cfg.Path)
	},
	"minio": func(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
		return NewMinio(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	},
}

// New creates the FileStore selected by cfg.Type.
func New(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	typ := cfg.Type
	if typ == "" {
		typ = "local"
	}
	fn, ok := storeTypes[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported storage type: %s", typ)
	}
	return fn(ctx, cfg)
}
