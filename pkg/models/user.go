package models

import "time"

// User represents a registered account. Devices and the web UI share one
// identity; the first registered user becomes the bootstrap admin.
type User struct {
	ID          int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Email       string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordMD5 string    `gorm:"not null;size:64" json:"-"`
	DisplayName string    `gorm:"size:255" json:"display_name,omitempty"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	IsAdmin     bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for User.
func (User) TableName() string {
	return "users"
}

// GetDisplayName returns the display name, or the email local part if unset.
func (u *User) GetDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	for i, c := range u.Email {
		if c == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}

// LoginRecord is appended on every successful login.
type LoginRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID    int64     `gorm:"index;not null" json:"user_id"`
	Account   string    `gorm:"size:255" json:"account"`
	Equipment string    `gorm:"size:64" json:"equipment"`
	Method    string    `gorm:"size:32" json:"method"` // new, equipment, web
	LoginTime time.Time `gorm:"autoCreateTime" json:"login_time"`
}

// TableName returns the table name for LoginRecord.
func (LoginRecord) TableName() string {
	return "login_records"
}
