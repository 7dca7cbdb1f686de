package blob

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/inkvault/inkvault/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := []byte("hello notebook")
	sum, err := s.Put(ctx, BucketUserData, "abc123", data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	want := md5.Sum(data)
	if sum != hex.EncodeToString(want[:]) {
		t.Errorf("md5 mismatch: got %s", sum)
	}

	got, err := s.Get(ctx, BucketUserData, "abc123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestPutStreamReportsSize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data := bytes.Repeat([]byte("x"), 100_000)
	sum, n, err := s.PutStream(ctx, BucketUserData, "big", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("put stream: %v", err)
	}
	if n != int64(len(data)) {
		t.Errorf("expected %d bytes, got %d", len(data), n)
	}
	want := md5.Sum(data)
	if sum != hex.EncodeToString(want[:]) {
		t.Errorf("md5 mismatch")
	}

	size, err := s.Size(ctx, BucketUserData, "big")
	if err != nil || size != int64(len(data)) {
		t.Errorf("size: got %d err=%v", size, err)
	}
}

func TestBucketsAreDisjoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, BucketUserData, "k", []byte("user")); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists(ctx, BucketCache, "k")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("key leaked across buckets")
	}
}

func TestExistsDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, _ := s.Exists(ctx, BucketUserData, "missing")
	if ok {
		t.Error("expected missing blob")
	}

	if _, err := s.Put(ctx, BucketUserData, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	ok, _ = s.Exists(ctx, BucketUserData, "k")
	if !ok {
		t.Error("expected blob to exist")
	}

	if err := s.Delete(ctx, BucketUserData, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ = s.Exists(ctx, BucketUserData, "k")
	if ok {
		t.Error("expected blob to be gone")
	}

	// Deleting again is not an error
	if err := s.Delete(ctx, BucketUserData, "k"); err != nil {
		t.Errorf("second delete: %v", err)
	}

	if _, err := s.Get(ctx, BucketUserData, "k"); !errors.Is(err, models.ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestOpenSeek(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, BucketUserData, "k", []byte("0123456789")); err != nil {
		t.Fatal(err)
	}

	rc, err := s.Open(ctx, BucketUserData, "k")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()

	if _, err := rc.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	rest, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(rest) != "456789" {
		t.Errorf("expected 456789, got %q", rest)
	}
}

func TestInvalidKeysRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "a/../../b"} {
		if _, err := s.Put(ctx, BucketUserData, key, []byte("v")); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestCacheKeyHierarchy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, BucketCache, "42/pages/P123.png", []byte("png")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Put(ctx, BucketCache, "42/pages/P456.png", []byte("png2")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.DeletePrefix(ctx, BucketCache, "42/pages/"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	ok, _ := s.Exists(ctx, BucketCache, "42/pages/P123.png")
	if ok {
		t.Error("expected cache artifacts gone after DeletePrefix")
	}
}

// ============================================================================
// Chunk store
// ============================================================================

func newTestChunkStore(t *testing.T) (*Store, *ChunkStore) {
	t.Helper()
	root := t.TempDir()
	s, err := NewStore(Config{Root: root})
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}
	c, err := NewChunkStore(Config{Root: root}, s)
	if err != nil {
		t.Fatalf("failed to create chunk store: %v", err)
	}
	return s, c
}

func TestChunkedUploadMatchesSinglePut(t *testing.T) {
	s, c := newTestChunkStore(t)
	ctx := context.Background()

	full := []byte("The quick brown fox jumps over the lazy dog")
	chunks := [][]byte{full[:10], full[10:17], full[17:]}

	for i, chunk := range chunks {
		if _, err := c.PutPart(ctx, 1, "upload-1", i+1, bytes.NewReader(chunk)); err != nil {
			t.Fatalf("put part %d: %v", i+1, err)
		}
	}

	sum, size, err := c.Merge(ctx, 1, "upload-1", "merged-key")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if size != int64(len(full)) {
		t.Errorf("expected size %d, got %d", len(full), size)
	}

	want := md5.Sum(full)
	if sum != hex.EncodeToString(want[:]) {
		t.Errorf("merged md5 mismatch")
	}

	got, err := s.Get(ctx, BucketUserData, "merged-key")
	if err != nil {
		t.Fatalf("get merged: %v", err)
	}
	if !bytes.Equal(got, full) {
		t.Errorf("merged content mismatch")
	}

	// Staging is cleaned up after merge
	parts, err := c.ListParts(ctx, 1, "upload-1")
	if err != nil {
		t.Fatalf("list parts: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("expected no staged parts after merge, got %v", parts)
	}
}

func TestPartRetryIsIdempotent(t *testing.T) {
	s, c := newTestChunkStore(t)
	ctx := context.Background()

	if _, err := c.PutPart(ctx, 1, "up", 1, bytes.NewReader([]byte("wrong"))); err != nil {
		t.Fatal(err)
	}
	// Retry replaces the staged part
	if _, err := c.PutPart(ctx, 1, "up", 1, bytes.NewReader([]byte("AB"))); err != nil {
		t.Fatal(err)
	}
	if _, err := c.PutPart(ctx, 1, "up", 2, bytes.NewReader([]byte("CD"))); err != nil {
		t.Fatal(err)
	}

	if _, _, err := c.Merge(ctx, 1, "up", "obj"); err != nil {
		t.Fatalf("merge: %v", err)
	}
	got, _ := s.Get(ctx, BucketUserData, "obj")
	if string(got) != "ABCD" {
		t.Errorf("expected ABCD, got %q", got)
	}
}

func TestChunkUploadsIsolatedByUser(t *testing.T) {
	_, c := newTestChunkStore(t)
	ctx := context.Background()

	if _, err := c.PutPart(ctx, 1, "up", 1, bytes.NewReader([]byte("a"))); err != nil {
		t.Fatal(err)
	}
	parts, err := c.ListParts(ctx, 2, "up")
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 0 {
		t.Error("upload visible across users")
	}
}
