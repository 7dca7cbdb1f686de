package models

import "time"

// Summary kinds stored by the summarization stage.
const (
	SummaryKindSummary    = "SUMMARY"
	SummaryKindTranscript = "TRANSCRIPT"
)

// Summary holds a generated document for one notebook: either the
// structured summary or the full page transcript. Keyed by a UUID derived
// from the file's storage key so reprocessing upserts in place.
type Summary struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	FileID     int64     `gorm:"index" json:"file_id"`
	Kind       string    `gorm:"size:16;not null" json:"kind"`
	Title      string    `gorm:"size:512" json:"title"`
	Content    string    `gorm:"type:text" json:"content"`
	GroupID    string    `gorm:"size:36" json:"group_id,omitempty"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
}

// TableName returns the table name for Summary.
func (Summary) TableName() string {
	return "summaries"
}

// SummaryTag is a free-form label attached to a summary.
type SummaryTag struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	SummaryID string `gorm:"index;size:36;not null" json:"summary_id"`
	Tag       string `gorm:"size:128;not null" json:"tag"`
}

// TableName returns the table name for SummaryTag.
func (SummaryTag) TableName() string {
	return "summary_tags"
}

// SummaryGroup is a user-defined collection of summaries.
type SummaryGroup struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     int64     `gorm:"index;not null" json:"user_id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
}

// TableName returns the table name for SummaryGroup.
func (SummaryGroup) TableName() string {
	return "summary_groups"
}
