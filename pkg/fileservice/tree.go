package fileservice

import (
	"context"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/vfs"
)

// ResolvePath finds a node by logical path, in either view.
func (s *Service) ResolvePath(ctx context.Context, userID int64, path string, flatten bool) (*models.FileNode, error) {
	if flatten {
		return s.vfs.ResolveFlattenedPath(ctx, userID, path)
	}
	return s.vfs.ResolvePath(ctx, userID, path)
}

// GetNode returns a node by ID.
func (s *Service) GetNode(ctx context.Context, userID, nodeID int64) (*models.FileNode, error) {
	return s.vfs.Store().GetNode(ctx, userID, nodeID)
}

// GetPathInfo returns a node's logical path in the requested view.
func (s *Service) GetPathInfo(ctx context.Context, userID, nodeID int64, flatten bool) (*vfs.PathInfo, error) {
	return s.vfs.GetPathInfo(ctx, userID, nodeID, flatten)
}

// List returns a folder's children in the requested view.
func (s *Service) List(ctx context.Context, userID, parentID int64, flatten bool) ([]*models.FileNode, error) {
	return s.vfs.ListDirectory(ctx, userID, parentID, flatten)
}

// ListRecursive returns every active descendant of a folder.
func (s *Service) ListRecursive(ctx context.Context, userID, parentID int64) ([]*models.FileNode, error) {
	return s.vfs.ListRecursive(ctx, userID, parentID)
}

// Search returns nodes whose name contains the keyword.
func (s *Service) Search(ctx context.Context, userID int64, keyword string) ([]*models.FileNode, error) {
	return s.vfs.SearchFiles(ctx, userID, keyword)
}

// CreateFolder makes a folder under parentID.
func (s *Service) CreateFolder(ctx context.Context, userID, parentID int64, name string, autorename bool) (*models.FileNode, error) {
	return s.vfs.CreateDirectory(ctx, userID, parentID, name, autorename)
}

// CreateFolderPath makes every missing folder along a logical path.
func (s *Service) CreateFolderPath(ctx context.Context, userID int64, path string, flatten bool) (int64, error) {
	if flatten {
		path = vfs.DevicePath(path)
	}
	return s.vfs.EnsureDirectoryPath(ctx, userID, path)
}

// Move reparents or renames a node.
func (s *Service) Move(ctx context.Context, userID, nodeID, newParentID int64, newName string, autorename bool) (*models.FileNode, error) {
	return s.vfs.MoveNode(ctx, userID, nodeID, newParentID, newName, autorename)
}

// Copy deep-copies a node into a new parent.
func (s *Service) Copy(ctx context.Context, userID, nodeID, newParentID int64, autorename bool) (*models.FileNode, error) {
	return s.vfs.CopyNode(ctx, userID, nodeID, newParentID, autorename)
}

// Rename changes a node's name in place.
func (s *Service) Rename(ctx context.Context, userID, nodeID int64, newName string, autorename bool) (*models.FileNode, error) {
	return s.vfs.RenameNode(ctx, userID, nodeID, newName, autorename)
}

// Delete soft-deletes a node into the recycle bin.
func (s *Service) Delete(ctx context.Context, userID, nodeID int64) error {
	files, err := s.vfs.DeleteNode(ctx, userID, nodeID)
	if err != nil {
		return err
	}
	logger.Info("node deleted",
		logger.KeyUserID, userID,
		logger.KeyNodeID, nodeID,
		logger.KeyCount, len(files))
	return nil
}
