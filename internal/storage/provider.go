// Package storage selects the blob store that receives raw feed archives.
package storage

import (
	"context"
	"fmt"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/gcs"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/local"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/memory"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/minio"
)

// Supported archive providers.
const (
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMinIO  = "minio"
	ProviderMemory = "memory"
)

// Config selects and configures one archive backend.
type Config struct {
	Provider  string       `mapstructure:"provider"`
	BaseDir   string       `mapstructure:"base_dir"`
	GCSBucket string       `mapstructure:"gcs_bucket"`
	MinIO     minio.Config `mapstructure:"minio"`
}

// Provider is a BlobStore that owns releasable resources.
type Provider interface {
	airquality.BlobStore
	Close() error
}

// Open builds the Provider named by cfg.Provider.
func Open(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case ProviderLocal, "":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, nil
	case ProviderGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("archive provider is 'gcs' but archive.gcs_bucket is not set")
		}
		store, err := gcs.Connect(ctx, gcs.Config{Bucket: cfg.GCSBucket}, gcs.DefaultClientFactory{})
		if err != nil {
			return nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, nil
	case ProviderMinIO:
		store, err := minio.New(ctx, cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("open minio archive: %w", err)
		}
		return store, nil
	case ProviderMemory:
		return memory.NewBlobStore(), nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", cfg.Provider)
	}
}
