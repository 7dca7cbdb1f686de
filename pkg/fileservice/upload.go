package fileservice

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/vfs"
)

// Public object-storage routes. The signature covers the route path, so
// query parameters like object_name may vary per request without
// re-signing.
const (
	UploadPath     = "/api/oss/upload"
	PartUploadPath = "/api/oss/upload/part"
	DownloadPath   = "/api/oss/download"
)

// UploadTicket is the reply to upload/apply: a fresh opaque storage key
// and pre-signed URLs admitting the bytes without a session token.
type UploadTicket struct {
	InnerName     string
	FullUploadURL string
	PartUploadURL string
}

// UploadApply allocates a storage key for an incoming file and signs the
// single-shot and chunked upload URLs. The key is UUID-derived so two
// users uploading identical content never share a blob.
func (s *Service) UploadApply(ctx context.Context, userID int64, fileName string) (*UploadTicket, error) {
	innerName := uuid.NewString()
	if ext := path.Ext(fileName); ext != "" {
		innerName += ext
	}

	fullQuery, err := s.signer.Sign(ctx, UploadPath, userTag(userID))
	if err != nil {
		return nil, err
	}
	partQuery, err := s.signer.Sign(ctx, PartUploadPath, userTag(userID))
	if err != nil {
		return nil, err
	}

	objectParam := url.Values{"object_name": {innerName}}.Encode()
	return &UploadTicket{
		InnerName:     innerName,
		FullUploadURL: UploadPath + "?" + objectParam + "&" + fullQuery.Encode(),
		PartUploadURL: PartUploadPath + "?" + objectParam + "&" + partQuery.Encode(),
	}, nil
}

// FinishUpload commits an uploaded blob into the user's tree.
//
// The blob must already exist at innerName. When contentHash is given it
// is checked against the stored bytes. The destination directory is
// created as needed; a same-name file in it is overwritten in place (the
// node keeps its ID, only the content reference changes). The previous
// blob is left behind; collection is a separate concern.
func (s *Service) FinishUpload(ctx context.Context, userID int64, fileName, dirPath, contentHash, innerName string, flatten bool) (*models.FileNode, error) {
	size, err := s.blobs.Size(ctx, blob.BucketUserData, innerName)
	if err != nil {
		return nil, err
	}

	md5sum, err := s.blobMD5(ctx, innerName)
	if err != nil {
		return nil, err
	}
	if contentHash != "" && !strings.EqualFold(contentHash, md5sum) {
		logger.Warn("upload hash mismatch",
			logger.KeyUserID, userID,
			logger.KeyStorageKey, innerName,
			logger.KeyMD5, md5sum)
		return nil, models.ErrHashMismatch
	}

	if flatten {
		dirPath = vfs.DevicePath(dirPath)
	}
	parentID, err := s.vfs.EnsureDirectoryPath(ctx, userID, dirPath)
	if err != nil {
		return nil, err
	}

	var node *models.FileNode
	existing, err := s.vfs.Store().FindChild(ctx, userID, parentID, fileName, false)
	switch err {
	case nil:
		prevKey := existing.StorageKey
		if err := s.vfs.Store().UpdateNodeContent(ctx, userID, existing.ID, innerName, md5sum, size); err != nil {
			return nil, err
		}
		if prevKey != innerName {
			// Summaries are keyed by content, so rows for the replaced
			// blob would otherwise linger until the file is deleted.
			if err := s.vfs.Store().DeleteSummariesForFile(ctx, existing.ID); err != nil {
				logger.Warn("failed to drop summaries for replaced content",
					logger.KeyUserID, userID,
					logger.KeyFileID, existing.ID,
					logger.Err(err))
			}
		}
		existing.StorageKey = innerName
		existing.MD5 = md5sum
		existing.Size = size
		node = existing
	case models.ErrNodeNotFound:
		node, err = s.vfs.CreateFile(ctx, userID, parentID, fileName, innerName, md5sum, size, false)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	logger.Info("upload finished",
		logger.KeyUserID, userID,
		logger.KeyFileID, node.ID,
		logger.KeyFilename, fileName,
		logger.KeySize, size)

	s.publishNoteUpdated(userID, node, vfs.CleanPath(dirPath+"/"+fileName))
	return node, nil
}

// blobMD5 hashes the stored blob. finish_upload trusts the stored bytes
// over the client's declaration, so the hash is always recomputed.
func (s *Service) blobMD5(ctx context.Context, key string) (string, error) {
	rc, err := s.blobs.Open(ctx, blob.BucketUserData, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	hasher := md5.New()
	if _, err := io.Copy(hasher, rc); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// DownloadTicket carries a fresh single-use signed download URL.
type DownloadTicket struct {
	Node *models.FileNode
	URL  string
}

// ResolveDownload signs a download URL for a file node. Each call mints
// a fresh nonce; the URL is good for one verification.
func (s *Service) ResolveDownload(ctx context.Context, userID, fileID int64) (*DownloadTicket, error) {
	node, err := s.vfs.Store().GetNode(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	if node.Folder() {
		return nil, models.ErrNodeNotFound
	}
	q, err := s.signer.Sign(ctx, DownloadPath, userTag(userID))
	if err != nil {
		return nil, err
	}
	idParam := url.Values{"id": {strconv.FormatInt(fileID, 10)}}.Encode()
	return &DownloadTicket{
		Node: node,
		URL:  DownloadPath + "?" + idParam + "&" + q.Encode(),
	}, nil
}

// OpenFile returns a file node and a seekable reader over its blob.
// The OSS download handler serves ranges from it.
func (s *Service) OpenFile(ctx context.Context, userID, fileID int64) (*models.FileNode, io.ReadSeekCloser, error) {
	node, err := s.vfs.Store().GetNode(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}
	if node.Folder() {
		return nil, nil, models.ErrNodeNotFound
	}
	rc, err := s.blobs.Open(ctx, blob.BucketUserData, node.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return node, rc, nil
}
