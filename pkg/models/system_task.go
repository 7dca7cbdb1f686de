package models

import "time"

// Task statuses.
const (
	TaskPending    = "PENDING"
	TaskProcessing = "PROCESSING"
	TaskCompleted  = "COMPLETED"
	TaskFailed     = "FAILED"
)

// Task types, one per processing module.
const (
	TaskTypeHashing   = "HASHING"
	TaskTypePNG       = "PNG_CONVERSION"
	TaskTypeOCR       = "OCR"
	TaskTypeEmbedding = "EMBEDDING"
	TaskTypeSummary   = "SUMMARY"
)

// GlobalTaskKey is the key used by file-scoped (non per-page) modules.
const GlobalTaskKey = "global"

// PageTaskKey returns the task key for a per-page module invocation.
func PageTaskKey(pageID string) string {
	return "page_" + pageID
}

// SystemTask records the pipeline's intent and outcome for one
// (file, module, key) combination. FAILED is terminal for the invocation;
// the file becomes re-eligible on the next NoteUpdated event.
type SystemTask struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	FileID     int64     `gorm:"index:idx_task_file;uniqueIndex:idx_task_unique;not null" json:"file_id"`
	TaskType   string    `gorm:"uniqueIndex:idx_task_unique;size:32;not null" json:"task_type"`
	Key        string    `gorm:"uniqueIndex:idx_task_unique;size:80;not null" json:"key"`
	Status     string    `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	RetryCount int       `gorm:"default:0" json:"retry_count"`
	LastError  string    `gorm:"type:text" json:"last_error,omitempty"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
}

// TableName returns the table name for SystemTask.
func (SystemTask) TableName() string {
	return "system_tasks"
}
