// Package fileservice orchestrates the virtual filesystem, blob store,
// chunk staging, URL signer and event bus into the operations the sync
// and web APIs expose: upload apply/finish, download resolution, tree
// manipulation, recycle bin and space accounting.
package fileservice

import (
	"context"
	"strconv"
	"strings"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/events"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/signer"
	"github.com/inkvault/inkvault/pkg/vfs"
)

// NotebookExt is the extension of notebook files; writes to them feed
// the processing pipeline.
const NotebookExt = ".note"

// DefaultAllocation is the per-user storage quota when none is configured.
const DefaultAllocation int64 = 10 << 30 // 10 GiB

// Config holds the file service configuration.
type Config struct {
	// Allocation is the advertised per-user storage quota in bytes.
	Allocation int64 `mapstructure:"allocation" yaml:"allocation"`
}

// Service is the file orchestration layer. All operations are scoped by
// the calling user's ID.
type Service struct {
	vfs        *vfs.VFS
	blobs      *blob.Store
	chunks     *blob.ChunkStore
	signer     *signer.Signer
	bus        *events.Bus
	allocation int64
}

// New creates the file service.
func New(cfg Config, v *vfs.VFS, blobs *blob.Store, chunks *blob.ChunkStore, sgn *signer.Signer, bus *events.Bus) *Service {
	allocation := cfg.Allocation
	if allocation <= 0 {
		allocation = DefaultAllocation
	}
	return &Service{
		vfs:        v,
		blobs:      blobs,
		chunks:     chunks,
		signer:     sgn,
		bus:        bus,
		allocation: allocation,
	}
}

// VFS exposes the underlying tree for API handlers.
func (s *Service) VFS() *vfs.VFS {
	return s.vfs
}

// Blobs exposes the blob store for the OSS handlers.
func (s *Service) Blobs() *blob.Store {
	return s.blobs
}

// Chunks exposes the chunk staging store for the OSS handlers.
func (s *Service) Chunks() *blob.ChunkStore {
	return s.chunks
}

// Signer exposes the URL signer for the OSS handlers.
func (s *Service) Signer() *signer.Signer {
	return s.signer
}

// Bootstrap creates the user's device directory skeleton.
func (s *Service) Bootstrap(ctx context.Context, userID int64) error {
	return s.vfs.Bootstrap(ctx, userID)
}

// IsNotebook reports whether a filename is a notebook by extension.
func IsNotebook(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), NotebookExt)
}

// userTag is the opaque user value carried inside signed URLs.
func userTag(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// ParseUserTag recovers the user ID from a verified signature payload.
func ParseUserTag(tag string) (int64, error) {
	id, err := strconv.ParseInt(tag, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.ErrBadSignature
	}
	return id, nil
}

// SpaceUsage is the user's storage accounting snapshot.
type SpaceUsage struct {
	Used      int64
	Allocated int64
}

// GetSpaceUsage sums the user's active file sizes against the quota.
func (s *Service) GetSpaceUsage(ctx context.Context, userID int64) (*SpaceUsage, error) {
	used, err := s.vfs.Store().SumFileSizes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SpaceUsage{Used: used, Allocated: s.allocation}, nil
}

// StorageEmpty reports whether the user has no active files. The sync
// handshake uses it to decide the synchronization direction.
func (s *Service) StorageEmpty(ctx context.Context, userID int64) (bool, error) {
	count, err := s.vfs.Store().CountActiveFiles(ctx, userID)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// publishNoteUpdated emits the pipeline trigger for notebook writes.
func (s *Service) publishNoteUpdated(userID int64, node *models.FileNode, path string) {
	if !IsNotebook(node.Name) {
		return
	}
	logger.Debug("notebook updated",
		logger.KeyUserID, userID,
		logger.KeyFileID, node.ID,
		logger.KeyPath, path)
	s.bus.PublishNoteUpdated(events.NoteUpdated{
		UserID:   userID,
		FileID:   node.ID,
		FilePath: path,
	})
}
