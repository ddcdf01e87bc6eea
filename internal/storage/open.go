package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/TheMichaelB/safe/internal/config"
	"github.com/TheMichaelB/safe/internal/events"
)

// Open returns the store for location. An s3://bucket/prefix location, or
// an empty location with the s3 backend configured, opens an S3Store;
// mem://name/dir opens an FSStore on a shared in-memory file system;
// anything else is a local directory. The configured conflict strategy and
// size limit are applied.
func Open(ctx context.Context, cfg *config.StorageConfig, location string, logger *events.Logger) (BlobStore, error) {
	conflict, err := ParseConflictStrategy(cfg.Conflict)
	if err != nil {
		return nil, err
	}

	if config.IsRemote(location) || (location == "" && cfg.Backend == "s3") {
		bucket, prefix := cfg.S3.Bucket, cfg.S3.Prefix
		if location != "" {
			if bucket, prefix, err = ParseS3URL(location); err != nil {
				return nil, err
			}
		}

		store, err := NewS3Store(ctx, bucket, prefix, cfg.S3.Region, logger)
		if err != nil {
			return nil, err
		}
		store.SetConflictStrategy(conflict)
		if cfg.MaxFileSize > 0 {
			store.SetMaxFileSize(cfg.MaxFileSize)
		}
		return store, nil
	}

	if strings.HasPrefix(location, MemScheme) {
		name, dir, err := ParseMemURL(location)
		if err != nil {
			return nil, err
		}
		fsys, err := MemFS(name)
		if err != nil {
			return nil, err
		}

		store := NewFSStore(fsys, dir, MemScheme+name, logger)
		store.SetConflictStrategy(conflict)
		if cfg.MaxFileSize > 0 {
			store.SetMaxFileSize(cfg.MaxFileSize)
		}
		return store, nil
	}

	dir := strings.TrimPrefix(location, "file://")
	if dir == "" {
		dir = "."
	}

	store, err := NewLocalStore(dir, logger)
	if err != nil {
		return nil, err
	}
	store.SetConflictStrategy(conflict)
	if cfg.MaxFileSize > 0 {
		store.SetMaxFileSize(cfg.MaxFileSize)
	}
	return store, nil
}

// ParseS3URL splits s3://bucket/prefix into its parts.
func ParseS3URL(location string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(location, "s3://")
	if rest == location {
		return "", "", fmt.Errorf("not an s3 url: %q", location)
	}

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 url without bucket: %q", location)
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	return bucket, prefix, nil
}
