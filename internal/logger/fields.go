package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation and querying stay uniform between the sync surface, the
// blob store and the processing pipeline.
const (
	// ========================================================================
	// Request & Session
	// ========================================================================
	KeyRequestID = "request_id" // HTTP request ID (chi middleware)
	KeyClientIP  = "client_ip"  // Client IP address
	KeyUserID    = "user_id"    // Numeric user ID
	KeyAccount   = "account"    // User account (email)
	KeyEquipment = "equipment"  // Device equipment number
	KeyMethod    = "method"     // HTTP method
	KeyRoute     = "route"      // HTTP route path

	// ========================================================================
	// Virtual Filesystem
	// ========================================================================
	KeyNodeID     = "node_id"     // File node ID
	KeyParentID   = "parent_id"   // Parent node ID
	KeyPath       = "path"        // Full logical path
	KeyFilename   = "filename"    // File or directory name
	KeyOldPath    = "old_path"    // Source path for move/copy
	KeyNewPath    = "new_path"    // Destination path for move/copy
	KeySize       = "size"        // Size in bytes
	KeyRecycleID  = "recycle_id"  // Recycle bin entry ID
	KeyIsFolder   = "is_folder"   // Folder indicator

	// ========================================================================
	// Blob Storage
	// ========================================================================
	KeyBucket     = "bucket"      // Blob bucket (user_data, cache)
	KeyStorageKey = "storage_key" // Opaque blob key
	KeyMD5        = "md5"         // Content hash
	KeyUploadID   = "upload_id"   // Chunked upload session ID
	KeyPartNumber = "part_number" // Chunk part number

	// ========================================================================
	// Processing Pipeline
	// ========================================================================
	KeyFileID   = "file_id"   // File being processed
	KeyPageID   = "page_id"   // Stable page identifier
	KeyPageIdx  = "page_idx"  // Page index within file
	KeyTaskType = "task_type" // Processing module task type
	KeyTaskKey  = "task_key"  // SystemTask key (page_<id> or global)
	KeyRetries  = "retries"   // Retry count

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Protocol error code (e.g. E0078)
	KeyStatus     = "status"      // HTTP status or task status
	KeyCount      = "count"       // Generic count
)

// Err returns a standard error attribute. Returns an empty attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrStr returns an error attribute from a string message.
func ErrStr(msg string) slog.Attr {
	return slog.String(KeyError, msg)
}

// ErrCode returns an attribute for a protocol error code.
func ErrCode(code int) slog.Attr {
	return slog.String(KeyErrorCode, fmt.Sprintf("%d", code))
}
