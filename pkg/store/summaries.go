package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/inkvault/inkvault/pkg/models"
)

// ============================================
// SUMMARY OPERATIONS
// ============================================

// UpsertSummary inserts or replaces a summary by its stable UUID key.
func (s *GORMStore) UpsertSummary(ctx context.Context, summary *models.Summary) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "content", "update_time",
			}),
		}).
		Create(summary).Error
}

func (s *GORMStore) GetSummary(ctx context.Context, id string) (*models.Summary, error) {
	return getByField[models.Summary](s.db, ctx, "id", id, models.ErrKeyNotFound)
}

func (s *GORMStore) ListSummaries(ctx context.Context, userID int64, kind string) ([]*models.Summary, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var summaries []*models.Summary
	if err := q.Order("update_time DESC").Find(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

// DeleteSummariesForFile removes summaries and their tags for one file.
func (s *GORMStore) DeleteSummariesForFile(ctx context.Context, fileID int64) error {
	var summaryIDs []string
	if err := s.db.WithContext(ctx).
		Model(&models.Summary{}).
		Where("file_id = ?", fileID).
		Pluck("id", &summaryIDs).Error; err != nil {
		return err
	}
	if len(summaryIDs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).
		Where("summary_id IN ?", summaryIDs).
		Delete(&models.SummaryTag{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Where("id IN ?", summaryIDs).
		Delete(&models.Summary{}).Error
}

// ReplaceSummaryTags swaps the tag set of a summary.
func (s *GORMStore) ReplaceSummaryTags(ctx context.Context, summaryID string, tags []*models.SummaryTag) error {
	if err := deleteByField[models.SummaryTag](s.db, ctx, "summary_id", summaryID); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&tags).Error
}

func (s *GORMStore) ListSummaryTags(ctx context.Context, summaryID string) ([]*models.SummaryTag, error) {
	var tags []*models.SummaryTag
	err := s.db.WithContext(ctx).
		Where("summary_id = ?", summaryID).
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}
