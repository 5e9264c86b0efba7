package objectstore

import (
	"context"
	"fmt"

	"vigilstream/pkg/config"
)

// Metadata is what the pipeline extracts from a stored object.
type Metadata struct {
	// DurationSeconds is nil when the backend could not determine it.
	DurationSeconds *float64
}

// Store is the blob store collaborator. Object bytes are written by the
// uploading client; the service only reads metadata and removes objects.
type Store interface {
	FetchMetadata(ctx context.Context, ref string) (Metadata, error)
	Delete(ctx context.Context, ref string) error
	// URL is the public location of ref.
	URL(ref string) string
}

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ObjectStoreConfig) (Store, error) {
	switch cfg.Driver {
	case "local", "":
		return NewLocal(cfg.LocalDir, cfg.FFProbePath, cfg.PublicBaseURL)
	case "s3":
		return NewS3(ctx, cfg.S3Bucket, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unsupported object store driver: %s", cfg.Driver)
	}
}
