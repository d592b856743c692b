package infra

import (
	"context"
	"fmt"

	"github.com/tnqbao/gau-property-media/config"
)

// ObjectStorage is the durable home of transcoded images.
// Uploads overwrite and deletes tolerate missing objects, so tasks can run more than once.
type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, path, contentType string) error
	DeleteOne(ctx context.Context, path string) error
	DeleteBatch(ctx context.Context, baseDir, directory string, filenames []string) error
	PublicBaseURL() string
	Health(ctx context.Context) error
	Name() string
}

func InitObjectStorage(cfg *config.EnvConfig) (ObjectStorage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendLocalDisk:
		return NewLocalStorage(cfg.Storage.LocalPath, cfg.Storage.LocalBaseURL)
	case config.StorageBackendObjectStore:
		switch cfg.Storage.Driver {
		case config.ObjectStoreDriverMinio:
			return InitMinioClient(cfg)
		case config.ObjectStoreDriverS3:
			return InitS3Client(context.Background(), cfg)
		default:
			return nil, fmt.Errorf("unknown object store driver %q", cfg.Storage.Driver)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
