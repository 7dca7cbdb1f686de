package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkvault/inkvault/pkg/ids"
	"github.com/inkvault/inkvault/pkg/models"
)

// ============================================
// SYSTEM TASK OPERATIONS
// ============================================

// GetTask returns the task row for (file, type, key), or ErrKeyNotFound.
func (s *GORMStore) GetTask(ctx context.Context, fileID int64, taskType, key string) (*models.SystemTask, error) {
	var task models.SystemTask
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND task_type = ? AND key = ?", fileID, taskType, key).
		First(&task).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrKeyNotFound)
	}
	return &task, nil
}

// UpsertTaskStatus transitions the task row for (file, type, key) to the
// given status, creating the row if needed. A failure records lastError
// and bumps retry_count; success clears the error.
func (s *GORMStore) UpsertTaskStatus(ctx context.Context, fileID int64, taskType, key, status, lastError string) error {
	task := models.SystemTask{
		ID:         ids.Next(),
		FileID:     fileID,
		TaskType:   taskType,
		Key:        key,
		Status:     status,
		LastError:  lastError,
		UpdateTime: time.Now(),
	}
	assignments := map[string]any{
		"status":      status,
		"last_error":  lastError,
		"update_time": time.Now(),
	}
	if status == models.TaskFailed {
		task.RetryCount = 1
		assignments["retry_count"] = gorm.Expr("retry_count + 1")
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}, {Name: "task_type"}, {Name: "key"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(&task).Error
}

// ListIncompleteTaskFiles returns the file IDs of every task row that is not
// COMPLETED, deduplicated. Used by recovery on startup.
func (s *GORMStore) ListIncompleteTaskFiles(ctx context.Context) ([]int64, error) {
	var fileIDs []int64
	err := s.db.WithContext(ctx).
		Model(&models.SystemTask{}).
		Where("status != ?", models.TaskCompleted).
		Distinct().
		Pluck("file_id", &fileIDs).Error
	if err != nil {
		return nil, err
	}
	return fileIDs, nil
}

// DeleteTasksForKey invalidates every module's task row for one page key.
func (s *GORMStore) DeleteTasksForKey(ctx context.Context, fileID int64, key string) error {
	return s.db.WithContext(ctx).
		Where("file_id = ? AND key = ?", fileID, key).
		Delete(&models.SystemTask{}).Error
}

// DeleteAllTasks removes every task row for a file.
func (s *GORMStore) DeleteAllTasks(ctx context.Context, fileID int64) error {
	return deleteByField[models.SystemTask](s.db, ctx, "file_id", fileID)
}
