// Package blob provides bucket-scoped storage of immutable byte objects
// addressed by opaque keys, plus the staging area for chunked uploads.
//
// Objects live under <root>/blobs/<bucket>/<key[0:2]>/<key>, with
// in-flight writes under <root>/blobs/temp. Every write goes through a
// temp file and an atomic rename, so readers never observe partial
// content. There is no cross-user deduplication: each file node owns its
// own key, so tenants cannot observe or interfere with each other's
// objects through the content layer.
package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkvault/inkvault/pkg/models"
)

// Bucket names the two physical namespaces.
type Bucket string

const (
	// BucketUserData holds the blobs referenced by file nodes.
	BucketUserData Bucket = "user_data"

	// BucketCache holds derived artifacts (page rasters etc.) keyed by
	// convention, e.g. "<file_id>/pages/<page_id>.png".
	BucketCache Bucket = "cache"
)

// Store is a filesystem-backed blob store.
type Store struct {
	root string
}

// Config holds configuration for the blob store.
type Config struct {
	// Root is the storage root; blobs live under <Root>/blobs.
	Root string `mapstructure:"root" yaml:"root" validate:"required"`
}

// NewStore creates the blob store, creating the bucket and temp
// directories if needed.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, errors.New("blob store root is required")
	}
	s := &Store{root: cfg.Root}
	for _, dir := range []string{
		s.tempDir(),
		filepath.Join(cfg.Root, "blobs", string(BucketUserData)),
		filepath.Join(cfg.Root, "blobs", string(BucketCache)),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}
	return s, nil
}

func (s *Store) tempDir() string {
	return filepath.Join(s.root, "blobs", "temp")
}

// objectPath maps (bucket, key) to its on-disk path. Keys are opaque but
// path separators are rejected to keep them inside the bucket; cache keys
// use forward slashes deliberately and shard on the first segment.
func (s *Store) objectPath(bucket Bucket, key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	if i := strings.IndexByte(key, '/'); i > 0 {
		// Hierarchical cache keys shard on their first path segment.
		return filepath.Join(s.root, "blobs", string(bucket), filepath.FromSlash(key)), nil
	}
	return filepath.Join(s.root, "blobs", string(bucket), shard, key), nil
}

// Put writes bytes at (bucket, key) and returns the content MD5.
func (s *Store) Put(ctx context.Context, bucket Bucket, key string, data []byte) (string, error) {
	sum, _, err := s.PutStream(ctx, bucket, key, bytes.NewReader(data))
	return sum, err
}

// PutStream streams r to (bucket, key), computing MD5 on the fly.
// Returns the hex MD5 and the byte count. A failed write leaves no
// partial object behind.
func (s *Store) PutStream(ctx context.Context, bucket Bucket, key string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	path, err := s.objectPath(bucket, key)
	if err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.tempDir(), "put-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		os.Remove(tmpPath)
		return "", 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to finalize blob: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// Get reads the whole object at (bucket, key).
func (s *Store) Get(ctx context.Context, bucket Bucket, key string) ([]byte, error) {
	rc, err := s.Open(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Open returns a seekable reader over the object. The caller must close it.
func (s *Store) Open(ctx context.Context, bucket Bucket, key string) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, models.ErrBlobNotFound
		}
		return nil, err
	}
	return f, nil
}

// Exists reports whether an object is present at (bucket, key).
func (s *Store) Exists(ctx context.Context, bucket Bucket, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Size returns the object's byte size.
func (s *Store) Size(ctx context.Context, bucket Bucket, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, models.ErrBlobNotFound
		}
		return 0, err
	}
	return info.Size(), nil
}

// Delete removes the object. Deleting an absent object is not an error.
func (s *Store) Delete(ctx context.Context, bucket Bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// DeletePrefix removes every object in the bucket whose key starts with
// prefix. Only hierarchical (slash-containing) prefixes are supported;
// the processor uses it to drop "<file_id>/pages/" cache artifacts.
func (s *Store) DeletePrefix(ctx context.Context, bucket Bucket, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if prefix == "" || strings.Contains(prefix, "..") {
		return fmt.Errorf("invalid blob prefix %q", prefix)
	}
	dir := filepath.Join(s.root, "blobs", string(bucket), filepath.FromSlash(strings.TrimSuffix(prefix, "/")))
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
