package fileservice

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/coordination"
	"github.com/inkvault/inkvault/pkg/events"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/signer"
	"github.com/inkvault/inkvault/pkg/store"
	"github.com/inkvault/inkvault/pkg/vfs"
)

type testEnv struct {
	svc   *Service
	blobs *blob.Store
	bus   *events.Bus
	coord *coordination.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(dir, "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	blobs, err := blob.NewStore(blob.Config{Root: dir})
	require.NoError(t, err)
	chunks, err := blob.NewChunkStore(blob.Config{Root: dir}, blobs)
	require.NoError(t, err)

	coord := coordination.NewMemory()
	sgn := signer.New("test-secret", coord, 0)
	bus := events.NewBus()

	return &testEnv{
		svc:   New(Config{}, vfs.New(s), blobs, chunks, sgn, bus),
		blobs: blobs,
		bus:   bus,
		coord: coord,
	}
}

// stage writes bytes directly into USER_DATA the way the OSS upload
// handler would, returning the storage key.
func (e *testEnv) stage(t *testing.T, key string, data []byte) string {
	t.Helper()
	_, err := e.blobs.Put(context.Background(), blob.BucketUserData, key, data)
	require.NoError(t, err)
	return key
}

func TestUploadApply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ticket, err := env.svc.UploadApply(ctx, 1, "meeting.note")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(ticket.InnerName, ".note"))
	assert.Contains(t, ticket.FullUploadURL, UploadPath+"?")
	assert.Contains(t, ticket.PartUploadURL, PartUploadPath+"?")
	assert.Contains(t, ticket.FullUploadURL, "object_name="+url.QueryEscape(ticket.InnerName))

	t.Run("upload URL verifies for the applying user", func(t *testing.T) {
		u, err := url.Parse(ticket.FullUploadURL)
		require.NoError(t, err)
		tag, err := env.svc.Signer().Verify(ctx, UploadPath, u.Query(), true)
		require.NoError(t, err)
		userID, err := ParseUserTag(tag)
		require.NoError(t, err)
		assert.Equal(t, int64(1), userID)
	})

	t.Run("fresh keys per apply", func(t *testing.T) {
		again, err := env.svc.UploadApply(ctx, 1, "meeting.note")
		require.NoError(t, err)
		assert.NotEqual(t, ticket.InnerName, again.InnerName)
	})
}

func TestFinishUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := int64(1)
	require.NoError(t, env.svc.Bootstrap(ctx, userID))

	content := []byte("notebook bytes")
	// d41... style literal would rot; compute through the store instead.
	md5sum, err := env.blobs.Put(ctx, blob.BucketUserData, "scratch", content)
	require.NoError(t, err)

	var updated []events.NoteUpdated
	env.bus.SubscribeNoteUpdated(func(e events.NoteUpdated) { updated = append(updated, e) })

	t.Run("creates the node and fires the event", func(t *testing.T) {
		key := env.stage(t, "inner-1.note", content)
		node, err := env.svc.FinishUpload(ctx, userID, "ideas.note", "/NOTE/Note", md5sum, key, false)
		require.NoError(t, err)
		assert.Equal(t, key, node.StorageKey)
		assert.Equal(t, md5sum, node.MD5)
		assert.Equal(t, int64(len(content)), node.Size)

		require.Len(t, updated, 1)
		assert.Equal(t, node.ID, updated[0].FileID)
		assert.Equal(t, "/NOTE/Note/ideas.note", updated[0].FilePath)
	})

	t.Run("same-name overwrite keeps the node ID", func(t *testing.T) {
		original, err := env.svc.ResolvePath(ctx, userID, "/NOTE/Note/ideas.note", false)
		require.NoError(t, err)

		newContent := []byte("edited notebook bytes")
		key := env.stage(t, "inner-2.note", newContent)
		node, err := env.svc.FinishUpload(ctx, userID, "ideas.note", "/NOTE/Note", "", key, false)
		require.NoError(t, err)
		assert.Equal(t, original.ID, node.ID)
		assert.Equal(t, key, node.StorageKey)
		assert.Equal(t, int64(len(newContent)), node.Size)
	})

	t.Run("overwrite drops summaries for the replaced content", func(t *testing.T) {
		node, err := env.svc.ResolvePath(ctx, userID, "/NOTE/Note/ideas.note", false)
		require.NoError(t, err)
		st := env.svc.vfs.Store()
		require.NoError(t, st.UpsertSummary(ctx, &models.Summary{
			ID:      "11111111-1111-1111-1111-111111111111",
			UserID:  userID,
			FileID:  node.ID,
			Kind:    models.SummaryKindSummary,
			Title:   "stale",
			Content: "summary of the old bytes",
		}))

		key := env.stage(t, "inner-6.note", []byte("rewritten notebook bytes"))
		_, err = env.svc.FinishUpload(ctx, userID, "ideas.note", "/NOTE/Note", "", key, false)
		require.NoError(t, err)

		left, err := st.ListSummaries(ctx, userID, "")
		require.NoError(t, err)
		assert.Empty(t, left, "summaries of the replaced content should be gone")
	})

	t.Run("hash mismatch rejected", func(t *testing.T) {
		key := env.stage(t, "inner-3.note", content)
		_, err := env.svc.FinishUpload(ctx, userID, "bad.note", "/NOTE/Note", "00000000000000000000000000000000", key, false)
		assert.ErrorIs(t, err, models.ErrHashMismatch)
	})

	t.Run("missing blob rejected", func(t *testing.T) {
		_, err := env.svc.FinishUpload(ctx, userID, "ghost.note", "/NOTE/Note", "", "no-such-key", false)
		assert.ErrorIs(t, err, models.ErrBlobNotFound)
	})

	t.Run("flattened path lands in the container", func(t *testing.T) {
		key := env.stage(t, "inner-4.note", content)
		node, err := env.svc.FinishUpload(ctx, userID, "web.note", "/Note", "", key, true)
		require.NoError(t, err)
		resolved, err := env.svc.ResolvePath(ctx, userID, "/NOTE/Note/web.note", false)
		require.NoError(t, err)
		assert.Equal(t, node.ID, resolved.ID)
	})

	t.Run("non-notebook files fire no event", func(t *testing.T) {
		before := len(updated)
		key := env.stage(t, "inner-5.pdf", content)
		_, err := env.svc.FinishUpload(ctx, userID, "doc.pdf", "/DOCUMENT/Document", "", key, false)
		require.NoError(t, err)
		assert.Len(t, updated, before)
	})
}

func TestDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := int64(1)

	content := []byte("Shared Content Block")
	key := env.stage(t, "dl-key", content)
	node, err := env.svc.FinishUpload(ctx, userID, "doc_X.txt", "/Export", "", key, false)
	require.NoError(t, err)

	ticket, err := env.svc.ResolveDownload(ctx, userID, node.ID)
	require.NoError(t, err)
	assert.Contains(t, ticket.URL, DownloadPath+"?")

	u, err := url.Parse(ticket.URL)
	require.NoError(t, err)

	t.Run("first verification succeeds", func(t *testing.T) {
		tag, err := env.svc.Signer().Verify(ctx, DownloadPath, u.Query(), true)
		require.NoError(t, err)
		uid, err := ParseUserTag(tag)
		require.NoError(t, err)

		got, rc, err := env.svc.OpenFile(ctx, uid, node.ID)
		require.NoError(t, err)
		defer rc.Close()
		assert.Equal(t, node.ID, got.ID)

		got2, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, content, got2)
	})

	t.Run("second verification is rejected", func(t *testing.T) {
		_, err := env.svc.Signer().Verify(ctx, DownloadPath, u.Query(), true)
		assert.ErrorIs(t, err, models.ErrNonceConsumed)
	})

	t.Run("folders are not downloadable", func(t *testing.T) {
		folder, err := env.svc.CreateFolder(ctx, userID, models.RootParentID, "f", false)
		require.NoError(t, err)
		_, err = env.svc.ResolveDownload(ctx, userID, folder.ID)
		assert.ErrorIs(t, err, models.ErrNodeNotFound)
	})
}

func TestMultiTenantNonInterference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, bob := int64(1), int64(2)

	content := []byte("Shared Content Block")
	aliceKey := env.stage(t, "alice-key", content)
	bobKey := env.stage(t, "bob-key", content)

	aliceNode, err := env.svc.FinishUpload(ctx, alice, "doc_X.txt", "/", "", aliceKey, false)
	require.NoError(t, err)
	bobNode, err := env.svc.FinishUpload(ctx, bob, "doc_X.txt", "/", "", bobKey, false)
	require.NoError(t, err)
	assert.NotEqual(t, aliceNode.StorageKey, bobNode.StorageKey)

	require.NoError(t, env.svc.Delete(ctx, alice, aliceNode.ID))

	_, rc, err := env.svc.OpenFile(ctx, bob, bobNode.ID)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestRecycleLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := int64(1)

	key := env.stage(t, "note-key.note", []byte("pages"))
	node, err := env.svc.FinishUpload(ctx, userID, "gone.note", "/", "", key, false)
	require.NoError(t, err)

	var deleted []events.NoteDeleted
	env.bus.SubscribeNoteDeleted(func(e events.NoteDeleted) { deleted = append(deleted, e) })

	require.NoError(t, env.svc.Delete(ctx, userID, node.ID))
	assert.Empty(t, deleted, "soft delete must not fire NoteDeleted")

	entries, err := env.svc.ListRecycle(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	t.Run("restore round trip", func(t *testing.T) {
		restored, err := env.svc.Restore(ctx, userID, entries[0].ID)
		require.NoError(t, err)
		assert.Equal(t, node.ID, restored.ID)
		assert.Equal(t, "gone.note", restored.Name)
	})

	t.Run("purge fires NoteDeleted", func(t *testing.T) {
		require.NoError(t, env.svc.Delete(ctx, userID, node.ID))
		require.NoError(t, env.svc.ClearRecycle(ctx, userID))
		require.Len(t, deleted, 1)
		assert.Equal(t, node.ID, deleted[0].FileID)

		_, err := env.svc.GetNode(ctx, userID, node.ID)
		assert.ErrorIs(t, err, models.ErrNodeNotFound)
	})
}

func TestSpaceUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := int64(1)

	empty, err := env.svc.StorageEmpty(ctx, userID)
	require.NoError(t, err)
	assert.True(t, empty)

	usage, err := env.svc.GetSpaceUsage(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, usage.Used)
	assert.Equal(t, DefaultAllocation, usage.Allocated)

	content := []byte("0123456789")
	key := env.stage(t, "sized", content)
	_, err = env.svc.FinishUpload(ctx, userID, "sized.bin", "/", "", key, false)
	require.NoError(t, err)

	usage, err = env.svc.GetSpaceUsage(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), usage.Used)

	empty, err = env.svc.StorageEmpty(ctx, userID)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestIsNotebook(t *testing.T) {
	assert.True(t, IsNotebook("a.note"))
	assert.True(t, IsNotebook("A.NOTE"))
	assert.False(t, IsNotebook("a.pdf"))
	assert.False(t, IsNotebook("note"))
}
