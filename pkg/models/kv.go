package models

import "time"

// KVEntry backs the SQL coordination service: sessions, sync leases,
// signed-URL nonces, rate-limit counters and login challenges. Expiry is
// lazy; readers treat an expired row as absent.
type KVEntry struct {
	Key       string     `gorm:"primaryKey;size:255" json:"key"`
	Value     string     `gorm:"type:text" json:"value"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for KVEntry.
func (KVEntry) TableName() string {
	return "kv"
}

// Expired reports whether the entry has a TTL that has elapsed.
func (e *KVEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}
