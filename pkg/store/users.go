package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/inkvault/inkvault/pkg/ids"
	"github.com/inkvault/inkvault/pkg/models"
)

// ============================================
// USER OPERATIONS
// ============================================

func (s *GORMStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "email", email, models.ErrUserNotFound)
}

func (s *GORMStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GORMStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateUser inserts a new user. The first user ever created is promoted
// to admin inside the same transaction (bootstrap).
func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			user.IsAdmin = true
		}
		if user.ID == 0 {
			user.ID = ids.Next()
		}
		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return models.ErrDuplicateUser
			}
			return err
		}
		return nil
	})
}

func (s *GORMStore) UpdateUserPassword(ctx context.Context, userID int64, passwordMD5 string) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password_md5", passwordMD5)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *GORMStore) SetUserActive(ctx context.Context, userID int64, active bool) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// ============================================
// LOGIN RECORDS
// ============================================

func (s *GORMStore) AppendLoginRecord(ctx context.Context, rec *models.LoginRecord) error {
	if rec.ID == 0 {
		rec.ID = ids.Next()
	}
	if rec.LoginTime.IsZero() {
		rec.LoginTime = time.Now()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GORMStore) ListLoginRecords(ctx context.Context, userID int64, limit int) ([]*models.LoginRecord, error) {
	var recs []*models.LoginRecord
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("login_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
