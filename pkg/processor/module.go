package processor

import (
	"context"
	"time"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/models"
)

// runResult is the outcome of one module invocation.
type runResult int

const (
	// runFailed means Process errored; the task row records FAILED and
	// later stages for the same page are not attempted this pass.
	runFailed runResult = iota

	// runSkipped means the module's work was already done (task row
	// COMPLETED and its artifact present); nothing executed.
	runSkipped

	// runCompleted means Process ran and the task row records COMPLETED.
	runCompleted
)

func (r runResult) ok() bool {
	return r != runFailed
}

// Module is one pipeline stage. Per-page modules receive the page they
// operate on; global modules receive a nil page and use GlobalTaskKey.
//
// Needed is the hybrid gate: it returns false only when the task row is
// COMPLETED and the module's end-state artifact actually exists, so a
// task table wiped by invalidation or an artifact lost from the cache
// both re-trigger the work.
type Module interface {
	Name() string
	TaskType() string
	Needed(ctx context.Context, file *models.FileNode, page *models.NotePage) (bool, error)
	Process(ctx context.Context, file *models.FileNode, page *models.NotePage) error
}

// taskKey resolves the SystemTask key for an invocation.
func taskKey(page *models.NotePage) string {
	if page == nil {
		return models.GlobalTaskKey
	}
	return models.PageTaskKey(page.PageID)
}

// runModule drives one module invocation through the task-state
// contract: gate, mark PROCESSING, execute, record COMPLETED or FAILED.
// Process errors are absorbed into the task row and never propagate.
func (s *Service) runModule(ctx context.Context, m Module, file *models.FileNode, page *models.NotePage) runResult {
	key := taskKey(page)

	needed, err := m.Needed(ctx, file, page)
	if err != nil {
		// An unreadable gate means we cannot prove the work is done.
		needed = true
	}
	if !needed {
		s.metrics.taskDone(m.TaskType(), "skipped")
		return runSkipped
	}

	if err := s.store.UpsertTaskStatus(ctx, file.ID, m.TaskType(), key, models.TaskProcessing, ""); err != nil {
		logger.Error("failed to mark task processing",
			logger.KeyFileID, file.ID,
			logger.KeyTaskType, m.TaskType(),
			logger.Err(err))
		return runFailed
	}

	start := time.Now()
	processErr := m.Process(ctx, file, page)
	s.metrics.observeStage(m.TaskType(), time.Since(start).Seconds())

	if processErr != nil {
		logger.Warn("module failed",
			logger.KeyFileID, file.ID,
			logger.KeyTaskType, m.TaskType(),
			logger.KeyTaskKey, key,
			logger.Err(processErr))
		if err := s.store.UpsertTaskStatus(ctx, file.ID, m.TaskType(), key, models.TaskFailed, processErr.Error()); err != nil {
			logger.Error("failed to record task failure",
				logger.KeyFileID, file.ID,
				logger.KeyTaskType, m.TaskType(),
				logger.Err(err))
		}
		s.metrics.taskDone(m.TaskType(), "failed")
		return runFailed
	}

	if err := s.store.UpsertTaskStatus(ctx, file.ID, m.TaskType(), key, models.TaskCompleted, ""); err != nil {
		logger.Error("failed to record task completion",
			logger.KeyFileID, file.ID,
			logger.KeyTaskType, m.TaskType(),
			logger.Err(err))
		return runFailed
	}
	s.metrics.taskDone(m.TaskType(), "completed")
	return runCompleted
}
