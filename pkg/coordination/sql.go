package coordination

import (
	"context"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// SQL is the production Service backed by the kv table. Atomicity comes
// from wrapping each read-modify-write in a database transaction; the
// table is small and per-key contention is rare, so this stays well
// within SQLite's single-writer budget.
type SQL struct {
	store *store.GORMStore
	now   func() time.Time
}

// NewSQL creates a coordination service on the given store.
func NewSQL(s *store.GORMStore) *SQL {
	return &SQL{store: s, now: time.Now}
}

func (s *SQL) expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := s.now().Add(ttl)
	return &t
}

// liveEntry fetches the row for key inside tx, treating expired rows as
// absent (and deleting them in passing).
func (s *SQL) liveEntry(tx *gorm.DB, key string) (*models.KVEntry, error) {
	var entry models.KVEntry
	if err := tx.Where("key = ?", key).First(&entry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, models.ErrKeyNotFound
		}
		return nil, err
	}
	if entry.Expired(s.now()) {
		if err := tx.Where("key = ?", key).Delete(&models.KVEntry{}).Error; err != nil {
			return nil, err
		}
		return nil, models.ErrKeyNotFound
	}
	return &entry, nil
}

func (s *SQL) SetValue(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := models.KVEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: s.expiry(ttl),
	}
	return s.store.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&entry).Error
}

func (s *SQL) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.liveEntry(tx, key)
		if err != nil {
			return err
		}
		value = entry.Value
		return nil
	})
	return value, err
}

func (s *SQL) DeleteValue(ctx context.Context, key string) error {
	return s.store.DB().WithContext(ctx).
		Where("key = ?", key).
		Delete(&models.KVEntry{}).Error
}

func (s *SQL) PopValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.liveEntry(tx, key)
		if err != nil {
			return err
		}
		// The rows-affected check makes the pop exclusive under
		// concurrent callers on backends with row locking.
		res := tx.Where("key = ?", key).Delete(&models.KVEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrKeyNotFound
		}
		value = entry.Value
		return nil
	})
	return value, err
}

func (s *SQL) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var result int64
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.liveEntry(tx, key)
		if err != nil && err != models.ErrKeyNotFound {
			return err
		}

		var n int64
		if entry != nil {
			n, _ = strconv.ParseInt(entry.Value, 10, 64)
		}
		n++

		fresh := models.KVEntry{Key: key, Value: strconv.FormatInt(n, 10)}
		if entry != nil {
			fresh.ExpiresAt = entry.ExpiresAt
		} else {
			fresh.ExpiresAt = s.expiry(ttl)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&fresh).Error; err != nil {
			return err
		}
		result = n
		return nil
	})
	return result, err
}

func (s *SQL) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	acquired := false
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.liveEntry(tx, key)
		if err != nil && err != models.ErrKeyNotFound {
			return err
		}
		if entry != nil && entry.Value != owner {
			return nil
		}

		fresh := models.KVEntry{Key: key, Value: owner, ExpiresAt: s.expiry(ttl)}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&fresh).Error; err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *SQL) ReleaseLock(ctx context.Context, key, owner string) error {
	return s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.liveEntry(tx, key)
		if err != nil {
			if err == models.ErrKeyNotFound {
				return nil
			}
			return err
		}
		if entry.Value != owner {
			return nil
		}
		return tx.Where("key = ?", key).Delete(&models.KVEntry{}).Error
	})
}

func (s *SQL) GetLockOwner(ctx context.Context, key string) (string, error) {
	return s.GetValue(ctx, key)
}

var _ Service = (*SQL)(nil)
var _ Service = (*Memory)(nil)
