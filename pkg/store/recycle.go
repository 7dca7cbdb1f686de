package store

import (
	"context"

	"github.com/inkvault/inkvault/pkg/ids"
	"github.com/inkvault/inkvault/pkg/models"
)

// ============================================
// RECYCLE BIN OPERATIONS
// ============================================

func (s *GORMStore) CreateRecycleEntry(ctx context.Context, entry *models.RecycleEntry) error {
	if entry.ID == 0 {
		entry.ID = ids.Next()
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GORMStore) GetRecycleEntry(ctx context.Context, userID, entryID int64) (*models.RecycleEntry, error) {
	var entry models.RecycleEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		First(&entry).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrRecycleNotFound)
	}
	return &entry, nil
}

func (s *GORMStore) ListRecycleEntries(ctx context.Context, userID int64) ([]*models.RecycleEntry, error) {
	var entries []*models.RecycleEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("delete_time DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GORMStore) DeleteRecycleEntries(ctx context.Context, userID int64, entryIDs []int64) error {
	if len(entryIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, entryIDs).
		Delete(&models.RecycleEntry{}).Error
}
