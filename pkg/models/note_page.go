package models

import "time"

// NotePage is one page of a parsed notebook file.
//
// PageID is stable across re-parses of the same notebook so that cached
// downstream artifacts (PNG raster, OCR text, embedding) survive a
// re-hash of unchanged pages. ContentHash changes when the page's ink
// changes, which invalidates everything derived from it.
type NotePage struct {
	FileID      int64     `gorm:"primaryKey;autoIncrement:false" json:"file_id"`
	PageID      string    `gorm:"primaryKey;size:64" json:"page_id"`
	PageIndex   int       `gorm:"not null" json:"page_index"`
	ContentHash string    `gorm:"size:64" json:"content_hash"`
	TextContent string    `gorm:"type:text" json:"text_content,omitempty"`
	Embedding   string    `gorm:"type:text" json:"-"` // JSON array of floats
	UpdateTime  time.Time `gorm:"autoUpdateTime" json:"update_time"`
}

// TableName returns the table name for NotePage.
func (NotePage) TableName() string {
	return "note_pages"
}
