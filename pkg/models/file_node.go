package models

import "time"

// Y/N flag values used by the vendor schema for boolean columns.
const (
	FlagYes = "Y"
	FlagNo  = "N"
)

// RootParentID is the parent_id of nodes that live at a user's root.
const RootParentID int64 = 0

// FileNode is one entry in a user's virtual filesystem tree.
//
// Folders carry no content; files reference an immutable blob through
// StorageKey. The logical name is mutable and per-user while the blob is
// addressed only by its opaque key, so renames and moves never touch
// physical storage. Soft-deleted nodes keep their row with IsActive=N and
// are reachable only through the recycle bin.
//
// uniq_active_sibling is partial over active rows: it makes concurrent
// creates of the same (user, parent, name, kind) lose deterministically
// on both backends, while soft-deleted rows never block a re-creation.
type FileNode struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID     int64     `gorm:"index:idx_user_parent;uniqueIndex:uniq_active_sibling,priority:1;not null" json:"user_id"`
	ParentID   int64     `gorm:"index:idx_user_parent;uniqueIndex:uniq_active_sibling,priority:2;not null;default:0" json:"parent_id"`
	Name       string    `gorm:"uniqueIndex:uniq_active_sibling,priority:3;not null;size:512" json:"name"`
	IsFolder   string    `gorm:"uniqueIndex:uniq_active_sibling,priority:4,where:is_active = 'Y';size:1;not null;default:N" json:"is_folder"`
	Size       int64     `gorm:"default:0" json:"size"`
	MD5        string    `gorm:"size:64" json:"md5"`
	StorageKey string    `gorm:"size:255" json:"storage_key"`
	IsActive   string    `gorm:"size:1;not null;default:Y;index" json:"is_active"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime time.Time `gorm:"autoUpdateTime" json:"update_time"`
}

// TableName returns the table name for FileNode.
func (FileNode) TableName() string {
	return "user_files"
}

// Folder reports whether the node is a directory.
func (n *FileNode) Folder() bool {
	return n.IsFolder == FlagYes
}

// Active reports whether the node is live (not soft-deleted).
func (n *FileNode) Active() bool {
	return n.IsActive == FlagYes
}

// RecycleEntry records one soft-deleted subtree root. Restoring the entry
// reactivates the node (and its descendants for folders) and puts it back
// under OriginalParentID.
type RecycleEntry struct {
	ID               int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID           int64     `gorm:"index;not null" json:"user_id"`
	NodeID           int64     `gorm:"index;not null" json:"node_id"`
	Name             string    `gorm:"size:512" json:"name"`
	IsFolder         string    `gorm:"size:1;default:N" json:"is_folder"`
	Size             int64     `gorm:"default:0" json:"size"`
	DeleteTime       time.Time `gorm:"autoCreateTime" json:"delete_time"`
	OriginalParentID int64     `gorm:"default:0" json:"original_parent_id"`
}

// TableName returns the table name for RecycleEntry.
func (RecycleEntry) TableName() string {
	return "recycle_files"
}
