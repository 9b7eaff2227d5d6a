package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/commdir/apiserver/config"
)

// ErrNotConfigured is returned when no storage backend is selected.
var ErrNotConfigured = errors.New("object storage is not configured")

// NewFromConfig connects the configured backend and ensures its bucket exists.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var backend ObjectStorage
	switch cfg.Backend {
	case config.BackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		backend = client
	case config.BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		backend = client
	case config.BackendNone, "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	s := NewStorage(backend)
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s.Bucket(), err)
	}
	return s, nil
}
