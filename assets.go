package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// AssetStore is the boolean facade over the sync engine. Each call reports
// success or failure and logs the underlying error; callers that need the
// cause use Uploader, Synchronizer and drainBucket directly.
type AssetStore struct {
	store       ObjectStore
	uploader    *Uploader
	concurrency int

	// FileProgress, when set, receives byte progress of PutFile and PutStream.
	FileProgress ProgressFunc
}

func NewAssetStore(store ObjectStore, concurrency int) *AssetStore {
	return &AssetStore{
		store:       store,
		uploader:    NewUploader(store),
		concurrency: concurrency,
	}
}

func (a *AssetStore) ListBuckets(ctx context.Context) []BucketInfo {
	buckets, err := a.store.ListBuckets(ctx)
	if err != nil {
		logFailure("list-buckets", "", "", err)
		return nil
	}
	return buckets
}

func (a *AssetStore) ListObjectsOfBucket(ctx context.Context, bucket string) []ObjectInfo {
	objects, err := a.store.ListObjects(ctx, bucket, "")
	if err != nil {
		logFailure("list", bucket, "", err)
		return nil
	}
	return objects
}

func (a *AssetStore) CreateBucket(ctx context.Context, bucket string) bool {
	return succeeded("create-bucket", bucket, "", a.store.CreateBucket(ctx, bucket))
}

func (a *AssetStore) DeleteBucket(ctx context.Context, bucket string) bool {
	return succeeded("delete-bucket", bucket, "", a.store.DeleteBucket(ctx, bucket))
}

// Exists reports false both for a missing object and for a failed lookup.
func (a *AssetStore) Exists(ctx context.Context, bucket, key string) bool {
	exists, err := objectExists(ctx, a.store, bucket, key)
	if err != nil {
		logFailure("exists", bucket, key, err)
		return false
	}
	return exists
}

// GetObjectBytes returns the whole object, or nil if it could not be read.
func (a *AssetStore) GetObjectBytes(ctx context.Context, bucket, key string) []byte {
	body, err := a.store.GetObject(ctx, bucket, key)
	if err != nil {
		logFailure("get", bucket, key, err)
		return nil
	}
	defer body.Close()

	data, err := readToEnd(body)
	if err != nil {
		logFailure("get", bucket, key, err)
		return nil
	}
	return data
}

// PutFile uploads a local file, overwriting any existing object. An empty key
// is derived from the path with rootMarker.
func (a *AssetStore) PutFile(ctx context.Context, bucket, path, key, rootMarker string) bool {
	_, err := a.uploader.Upload(ctx, UploadRequest{
		Bucket:     bucket,
		Path:       path,
		Key:        key,
		RootMarker: rootMarker,
		Progress:   a.FileProgress,
		Overwrite:  true,
	})
	return succeeded("put", bucket, key, err)
}

// PutStream buffers body and uploads it under key with the given metadata.
func (a *AssetStore) PutStream(ctx context.Context, bucket string, body io.Reader, key string, metadata map[string]string) bool {
	_, err := a.uploader.Upload(ctx, UploadRequest{
		Bucket:    bucket,
		Body:      body,
		Key:       key,
		Metadata:  metadata,
		Progress:  a.FileProgress,
		Overwrite: true,
	})
	return succeeded("put", bucket, key, err)
}

// SyncFile uploads path only if its derived key is not in the bucket yet.
func (a *AssetStore) SyncFile(ctx context.Context, bucket, path, rootMarker string) bool {
	_, err := a.uploader.Upload(ctx, UploadRequest{
		Bucket:     bucket,
		Path:       path,
		RootMarker: rootMarker,
		Progress:   a.FileProgress,
	})
	return succeeded("sync", bucket, path, err)
}

func (a *AssetStore) CopyObject(ctx context.Context, sourceBucket, sourceKey, destinationBucket, destinationKey string) bool {
	err := a.store.CopyObject(ctx, sourceBucket, sourceKey, destinationBucket, normalizeKey(destinationKey), aclPublicRead)
	return succeeded("copy", destinationBucket, destinationKey, err)
}

func (a *AssetStore) DeleteObject(ctx context.Context, bucket, key string) bool {
	err := a.store.DeleteObject(ctx, bucket, key)
	if err == nil {
		log.Info(fmt.Sprintf("Deleted %s from bucket %s", key, bucket))
	}
	return succeeded("delete", bucket, key, err)
}

// DownloadFile writes the object to path, creating parent directories.
func (a *AssetStore) DownloadFile(ctx context.Context, bucket, key, path string) bool {
	body, err := a.store.GetObject(ctx, bucket, key)
	if err != nil {
		return succeeded("download", bucket, key, err)
	}
	defer body.Close()

	if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
		return succeeded("download", bucket, key, mkdirErr)
	}
	out, err := os.Create(path)
	if err != nil {
		return succeeded("download", bucket, key, err)
	}
	if _, copyErr := io.Copy(out, body); copyErr != nil {
		out.Close()
		return succeeded("download", bucket, key, copyErr)
	}
	return succeeded("download", bucket, key, out.Close())
}

// CleanBucket drains bucket. See drainBucket for the termination caveat.
func (a *AssetStore) CleanBucket(ctx context.Context, bucket string) bool {
	result, err := drainBucket(ctx, a.store, bucket, DrainOptions{})
	if err != nil {
		return succeeded("drain", bucket, "", err)
	}
	return len(result.Failed) == 0
}

// UploadDirectory uploads every file under dir concurrently with lowercase
// keys relative to dir.
func (a *AssetStore) UploadDirectory(ctx context.Context, bucket, dir string, progress ProgressFunc) bool {
	result, err := uploadDirectory(ctx, a.store, bucket, dir, DirectoryUploadOptions{
		Recursive:    true,
		Concurrency:  a.concurrency,
		ACL:          aclPublicRead,
		StorageClass: storageClassStandard,
		Progress:     progress,
	})
	if err != nil {
		return succeeded("upload-directory", bucket, dir, err)
	}
	return len(result.Failed()) == 0
}

// SyncDirectory uploads the files under dir whose keys are missing from
// bucket. It reports false if any file failed.
func (a *AssetStore) SyncDirectory(ctx context.Context, bucket, dir, rootMarker string) bool {
	synchronizer := NewSynchronizer(a.store, nil)
	result, err := synchronizer.Sync(ctx, SyncConfig{
		SourceFolder:      dir,
		DestinationBucket: bucket,
		RootMarker:        rootMarker,
	})
	if err != nil {
		return succeeded("sync", bucket, dir, err)
	}
	return len(result.Failed) == 0
}

func succeeded(op, bucket, key string, err error) bool {
	if err != nil {
		logFailure(op, bucket, key, err)
		return false
	}
	return true
}

func logFailure(op, bucket, key string, err error) {
	log.WithFields(log.Fields{
		"op":     op,
		"bucket": bucket,
		"key":    key,
	}).Warn(err)
}
