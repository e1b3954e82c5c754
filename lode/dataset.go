package lode

import (
	"context"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// NewReadDataset opens a dataset for reading with the write path's
// codec and layout.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// NewReadDatasetFS opens a dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 opens a dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return NewReadDataset(dataset, factory)
}

// snapshotMatchesFilter reports whether any file in the snapshot lies in
// the key=value partition. An empty value matches everything.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks for an exact key=value path segment, so
// build_id=b-1 does not match build_id=b-10.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
