package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ============================================================================
// Generic GORM Helpers
// ============================================================================
//
// These helpers reduce repetitive CRUD boilerplate across store
// implementation files. They are unexported and operate on the raw
// *gorm.DB so they compose with transactions.

// getByField retrieves a single record of type T by matching field=value.
// gorm.ErrRecordNotFound is converted to the provided notFoundErr for
// consistent domain error mapping.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// deleteByField deletes records of type T matching field=value.
// Missing rows are not an error: cleanup paths call this for keys that
// may already be gone.
func deleteByField[T any](db *gorm.DB, ctx context.Context, field string, value any) error {
	var zero T
	return db.WithContext(ctx).Where(field+" = ?", value).Delete(&zero).Error
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite or PostgreSQL unique constraint errors
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "duplicate key value violates unique constraint")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
