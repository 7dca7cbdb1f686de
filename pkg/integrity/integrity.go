// Package integrity audits a user's file metadata against the blobs that
// are supposed to back it.
package integrity

import (
	"context"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/store"
)

// Report is the outcome of one scan. Scanned = OK + MissingBlob +
// SizeMismatch.
type Report struct {
	Scanned      int `json:"scanned"`
	OK           int `json:"ok"`
	MissingBlob  int `json:"missing_blob"`
	SizeMismatch int `json:"size_mismatch"`
}

// Service verifies blob existence and sizes. It never mutates anything.
type Service struct {
	store *store.GORMStore
	blobs *blob.Store
}

// New creates the integrity service.
func New(s *store.GORMStore, blobs *blob.Store) *Service {
	return &Service{store: s, blobs: blobs}
}

// Scan walks the user's active files and checks each one's blob.
func (s *Service) Scan(ctx context.Context, userID int64) (*Report, error) {
	files, err := s.store.ListActiveFiles(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, f := range files {
		report.Scanned++

		exists, err := s.blobs.Exists(ctx, blob.BucketUserData, f.StorageKey)
		if err != nil {
			return nil, err
		}
		if !exists {
			report.MissingBlob++
			logger.Warn("blob missing",
				logger.KeyUserID, userID,
				logger.KeyFileID, f.ID,
				logger.KeyStorageKey, f.StorageKey)
			continue
		}

		size, err := s.blobs.Size(ctx, blob.BucketUserData, f.StorageKey)
		if err != nil {
			return nil, err
		}
		if size != f.Size {
			report.SizeMismatch++
			logger.Warn("blob size mismatch",
				logger.KeyUserID, userID,
				logger.KeyFileID, f.ID,
				logger.KeySize, f.Size,
				"blob_size", size)
			continue
		}
		report.OK++
	}
	return report, nil
}
