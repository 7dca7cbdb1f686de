package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// ChunkStore stages the parts of chunked uploads before they are merged
// into a single USER_DATA blob. Parts are keyed by (user, uploadID) and
// live under <root>/blobs/temp/chunks/<user>/<uploadID>/<partNumber>.
//
// Re-sending a part is an idempotent overwrite; the final chunk triggers
// the merge at the service layer, after which the staging directory is
// removed.
type ChunkStore struct {
	root  string
	blobs *Store
}

// NewChunkStore creates a chunk store sharing the blob store's root.
func NewChunkStore(cfg Config, blobs *Store) (*ChunkStore, error) {
	if cfg.Root == "" {
		return nil, errors.New("chunk store root is required")
	}
	c := &ChunkStore{root: cfg.Root, blobs: blobs}
	if err := os.MkdirAll(c.baseDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	return c, nil
}

func (c *ChunkStore) baseDir() string {
	return filepath.Join(c.root, "blobs", "temp", "chunks")
}

func (c *ChunkStore) uploadDir(userID int64, uploadID string) (string, error) {
	if uploadID == "" || filepath.Base(uploadID) != uploadID {
		return "", fmt.Errorf("invalid upload id %q", uploadID)
	}
	return filepath.Join(c.baseDir(), strconv.FormatInt(userID, 10), uploadID), nil
}

// PutPart stages one part, returning its MD5. Retries overwrite in place.
func (c *ChunkStore) PutPart(ctx context.Context, userID int64, uploadID string, partNumber int, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if partNumber < 1 {
		return "", fmt.Errorf("part number %d out of range", partNumber)
	}
	dir, err := c.uploadDir(userID, uploadID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "part-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	hasher := md5.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to stage chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, strconv.Itoa(partNumber))); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ListParts returns the staged part numbers in ascending order.
func (c *ChunkStore) ListParts(ctx context.Context, userID int64, uploadID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := c.uploadDir(userID, uploadID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var parts []int
	for _, e := range entries {
		if n, err := strconv.Atoi(e.Name()); err == nil {
			parts = append(parts, n)
		}
	}
	sort.Ints(parts)
	return parts, nil
}

// Merge concatenates all staged parts in numeric order into the
// USER_DATA blob at objectName, then removes the staging directory.
// Returns the merged blob's MD5 and size.
func (c *ChunkStore) Merge(ctx context.Context, userID int64, uploadID, objectName string) (string, int64, error) {
	dir, err := c.uploadDir(userID, uploadID)
	if err != nil {
		return "", 0, err
	}
	parts, err := c.ListParts(ctx, userID, uploadID)
	if err != nil {
		return "", 0, err
	}
	if len(parts) == 0 {
		return "", 0, fmt.Errorf("no staged parts for upload %s", uploadID)
	}

	readers := make([]io.Reader, 0, len(parts))
	files := make([]*os.File, 0, len(parts))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, n := range parts {
		f, err := os.Open(filepath.Join(dir, strconv.Itoa(n)))
		if err != nil {
			return "", 0, fmt.Errorf("failed to open part %d: %w", n, err)
		}
		files = append(files, f)
		readers = append(readers, f)
	}

	sum, size, err := c.blobs.PutStream(ctx, BucketUserData, objectName, io.MultiReader(readers...))
	if err != nil {
		return "", 0, err
	}

	if err := c.Cleanup(ctx, userID, uploadID); err != nil {
		return "", 0, err
	}
	return sum, size, nil
}

// Cleanup removes all staged parts for an upload.
func (c *ChunkStore) Cleanup(ctx context.Context, userID int64, uploadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := c.uploadDir(userID, uploadID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
