package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType selects the bundle storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// NewStoreFromEnv creates a bundle store from environment variables.
//
//   - HELIX_ARCHIVE_TYPE: "fs" (default), "s3", or "gcs"
//   - HELIX_DATA_DIR: base directory for the fs store (default "data")
//
// For S3:
//   - HELIX_ARCHIVE_S3_BUCKET (required)
//   - HELIX_ARCHIVE_S3_REGION or AWS_REGION
//   - HELIX_ARCHIVE_S3_ENDPOINT (optional, MinIO/LocalStack)
//   - HELIX_ARCHIVE_S3_PREFIX (optional)
//
// For GCS:
//   - HELIX_ARCHIVE_GCS_BUCKET (required)
//   - HELIX_ARCHIVE_GCS_PREFIX (optional)
func NewStoreFromEnv(ctx context.Context) (BlobStore, error) {
	storeType := StoreType(os.Getenv("HELIX_ARCHIVE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		dataDir := os.Getenv("HELIX_DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "bundles"))
	case StoreTypeS3:
		return newS3StoreFromEnv(ctx)
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("archive: unsupported store type: %s", storeType)
	}
}

func newS3StoreFromEnv(ctx context.Context) (BlobStore, error) {
	bucket := os.Getenv("HELIX_ARCHIVE_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("archive: HELIX_ARCHIVE_S3_BUCKET is required for S3 storage")
	}
	region := os.Getenv("HELIX_ARCHIVE_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	return NewS3Store(ctx, S3Config{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("HELIX_ARCHIVE_S3_ENDPOINT"),
		Prefix:   os.Getenv("HELIX_ARCHIVE_S3_PREFIX"),
	})
}
