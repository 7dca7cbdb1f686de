package fileservice

import (
	"context"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/events"
	"github.com/inkvault/inkvault/pkg/models"
)

// ListRecycle returns the user's recycle entries, newest first.
func (s *Service) ListRecycle(ctx context.Context, userID int64) ([]*models.RecycleEntry, error) {
	return s.vfs.Store().ListRecycleEntries(ctx, userID)
}

// Restore brings a recycled subtree back to life.
func (s *Service) Restore(ctx context.Context, userID, entryID int64) (*models.FileNode, error) {
	node, err := s.vfs.RestoreNode(ctx, userID, entryID)
	if err != nil {
		return nil, err
	}
	logger.Info("recycle entry restored",
		logger.KeyUserID, userID,
		logger.KeyRecycleID, entryID,
		logger.KeyNodeID, node.ID)
	return node, nil
}

// PurgeRecycle permanently removes recycle entries. Notebook files get a
// NoteDeleted event so the pipeline drops their pages, tasks and cache.
func (s *Service) PurgeRecycle(ctx context.Context, userID int64, entryIDs []int64) error {
	purged, err := s.vfs.PurgeRecycleEntries(ctx, userID, entryIDs)
	if err != nil {
		return err
	}
	s.announcePurged(userID, purged)
	return nil
}

// ClearRecycle empties the recycle bin.
func (s *Service) ClearRecycle(ctx context.Context, userID int64) error {
	purged, err := s.vfs.PurgeAllRecycle(ctx, userID)
	if err != nil {
		return err
	}
	s.announcePurged(userID, purged)
	return nil
}

func (s *Service) announcePurged(userID int64, purged []*models.FileNode) {
	for _, node := range purged {
		if !IsNotebook(node.Name) {
			continue
		}
		s.bus.PublishNoteDeleted(events.NoteDeleted{UserID: userID, FileID: node.ID})
	}
	if len(purged) > 0 {
		logger.Info("recycle entries purged",
			logger.KeyUserID, userID,
			logger.KeyCount, len(purged))
	}
}
