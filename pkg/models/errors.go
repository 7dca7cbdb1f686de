package models

import "errors"

// Common errors for identity, filesystem and storage operations.
var (
	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Filesystem errors
	ErrNodeNotFound    = errors.New("node not found")
	ErrNotAFolder      = errors.New("node is not a folder")
	ErrNameConflict    = errors.New("name already exists")
	ErrCyclicMove      = errors.New("cyclic move: destination is inside the moved folder")
	ErrSystemDirectory = errors.New("system directory cannot be modified")
	ErrRecycleNotFound = errors.New("recycle entry not found")

	// Blob errors
	ErrBlobNotFound   = errors.New("blob not found")
	ErrHashMismatch   = errors.New("content hash does not match stored blob")
	ErrUploadNotFound = errors.New("upload session not found")

	// Coordination errors
	ErrKeyNotFound  = errors.New("key not found")
	ErrLockHeld     = errors.New("lock held by another owner")
	ErrSyncHeld     = errors.New("sync session held by another equipment")
	ErrTokenInvalid = errors.New("session token invalid or expired")
	ErrRateLimited  = errors.New("too many attempts")

	// Signed URL errors
	ErrBadSignature  = errors.New("signature verification failed")
	ErrURLExpired    = errors.New("signed URL expired")
	ErrNonceConsumed = errors.New("signed URL already used")
)

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&LoginRecord{},
		&FileNode{},
		&RecycleEntry{},
		&NotePage{},
		&SystemTask{},
		&Summary{},
		&SummaryTag{},
		&SummaryGroup{},
		&KVEntry{},
	}
}
