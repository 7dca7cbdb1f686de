package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/inkvault/inkvault/pkg/ids"
	"github.com/inkvault/inkvault/pkg/models"
)

// Transaction runs fn inside a database transaction. The GORMStore passed
// to fn is bound to the transaction; using the outer store inside fn
// escapes the transaction.
func (s *GORMStore) Transaction(ctx context.Context, fn func(tx *GORMStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(txdb *gorm.DB) error {
		return fn(&GORMStore{db: txdb, config: s.config})
	})
}

// ============================================
// FILE NODE OPERATIONS
// ============================================
//
// All reads are scoped by user_id so a tenant can never observe another
// tenant's rows. Cross-tenant IDs surface as ErrNodeNotFound.

// GetNode returns an active node by ID within the user's namespace.
func (s *GORMStore) GetNode(ctx context.Context, userID, nodeID int64) (*models.FileNode, error) {
	var node models.FileNode
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND is_active = ?", nodeID, userID, models.FlagYes).
		First(&node).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNodeNotFound)
	}
	return &node, nil
}

// GetNodeAnyState returns a node regardless of its is_active flag.
// Used by recycle restore and purge.
func (s *GORMStore) GetNodeAnyState(ctx context.Context, userID, nodeID int64) (*models.FileNode, error) {
	var node models.FileNode
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", nodeID, userID).
		First(&node).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNodeNotFound)
	}
	return &node, nil
}

// FindChild returns the active child of parentID with the given name and
// kind, or ErrNodeNotFound.
func (s *GORMStore) FindChild(ctx context.Context, userID, parentID int64, name string, isFolder bool) (*models.FileNode, error) {
	flag := models.FlagNo
	if isFolder {
		flag = models.FlagYes
	}
	var node models.FileNode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND parent_id = ? AND name = ? AND is_folder = ? AND is_active = ?",
			userID, parentID, name, flag, models.FlagYes).
		First(&node).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNodeNotFound)
	}
	return &node, nil
}

// FindChildAnyKind returns the active child with the given name, folder or file.
func (s *GORMStore) FindChildAnyKind(ctx context.Context, userID, parentID int64, name string) (*models.FileNode, error) {
	var node models.FileNode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND parent_id = ? AND name = ? AND is_active = ?",
			userID, parentID, name, models.FlagYes).
		First(&node).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNodeNotFound)
	}
	return &node, nil
}

// ListChildren returns the active children of parentID in creation order.
func (s *GORMStore) ListChildren(ctx context.Context, userID, parentID int64) ([]*models.FileNode, error) {
	var nodes []*models.FileNode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND parent_id = ? AND is_active = ?", userID, parentID, models.FlagYes).
		Order("id").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// CreateNode inserts a node, assigning a snowflake ID when unset.
// A racing insert of the same active (user, parent, name, kind) hits the
// uniq_active_sibling index and surfaces as ErrNameConflict.
func (s *GORMStore) CreateNode(ctx context.Context, node *models.FileNode) error {
	if node.ID == 0 {
		node.ID = ids.Next()
	}
	if node.IsActive == "" {
		node.IsActive = models.FlagYes
	}
	now := time.Now()
	if node.CreateTime.IsZero() {
		node.CreateTime = now
	}
	node.UpdateTime = now
	if err := s.db.WithContext(ctx).Create(node).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrNameConflict
		}
		return err
	}
	return nil
}

// UpdateNodeLocation moves and/or renames a node.
func (s *GORMStore) UpdateNodeLocation(ctx context.Context, userID, nodeID, newParentID int64, newName string) error {
	result := s.db.WithContext(ctx).
		Model(&models.FileNode{}).
		Where("id = ? AND user_id = ?", nodeID, userID).
		Updates(map[string]any{
			"parent_id":   newParentID,
			"name":        newName,
			"update_time": time.Now(),
		})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return models.ErrNameConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNodeNotFound
	}
	return nil
}

// UpdateNodeContent replaces a file node's blob reference. Used by the
// same-name overwrite policy of finish_upload.
func (s *GORMStore) UpdateNodeContent(ctx context.Context, userID, nodeID int64, storageKey, md5 string, size int64) error {
	result := s.db.WithContext(ctx).
		Model(&models.FileNode{}).
		Where("id = ? AND user_id = ?", nodeID, userID).
		Updates(map[string]any{
			"storage_key": storageKey,
			"md5":         md5,
			"size":        size,
			"update_time": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNodeNotFound
	}
	return nil
}

// SetNodesActive flips the is_active flag for a set of node IDs.
func (s *GORMStore) SetNodesActive(ctx context.Context, userID int64, nodeIDs []int64, active bool) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	flag := models.FlagNo
	if active {
		flag = models.FlagYes
	}
	return s.db.WithContext(ctx).
		Model(&models.FileNode{}).
		Where("user_id = ? AND id IN ?", userID, nodeIDs).
		Updates(map[string]any{"is_active": flag, "update_time": time.Now()}).Error
}

// DeleteNodes removes node rows permanently. Used by recycle purge.
func (s *GORMStore) DeleteNodes(ctx context.Context, userID int64, nodeIDs []int64) error {
	if len(nodeIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, nodeIDs).
		Delete(&models.FileNode{}).Error
}

// CollectSubtreeIDs returns the IDs of root and every descendant with the
// given active flag, walking breadth-first by parent_id.
func (s *GORMStore) CollectSubtreeIDs(ctx context.Context, userID, rootID int64, activeOnly bool) ([]int64, error) {
	all := []int64{rootID}
	frontier := []int64{rootID}
	for len(frontier) > 0 {
		var children []int64
		q := s.db.WithContext(ctx).
			Model(&models.FileNode{}).
			Where("user_id = ? AND parent_id IN ?", userID, frontier)
		if activeOnly {
			q = q.Where("is_active = ?", models.FlagYes)
		}
		if err := q.Pluck("id", &children).Error; err != nil {
			return nil, err
		}
		all = append(all, children...)
		frontier = children
	}
	return all, nil
}

// SearchNodes returns active file nodes whose name contains keyword,
// case-insensitively.
func (s *GORMStore) SearchNodes(ctx context.Context, userID int64, keyword string) ([]*models.FileNode, error) {
	var nodes []*models.FileNode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND LOWER(name) LIKE ? ESCAPE '\\'",
			userID, models.FlagYes, "%"+escapeLike(strings.ToLower(keyword))+"%").
		Order("id").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// SumFileSizes returns the total size of the user's active files.
func (s *GORMStore) SumFileSizes(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.FileNode{}).
		Where("user_id = ? AND is_folder = ? AND is_active = ?", userID, models.FlagNo, models.FlagYes).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	return total, err
}

// CountActiveFiles returns the number of active files owned by the user.
func (s *GORMStore) CountActiveFiles(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.FileNode{}).
		Where("user_id = ? AND is_folder = ? AND is_active = ?", userID, models.FlagNo, models.FlagYes).
		Count(&count).Error
	return count, err
}

// ListActiveFiles returns all active file (non-folder) nodes for a user.
func (s *GORMStore) ListActiveFiles(ctx context.Context, userID int64) ([]*models.FileNode, error) {
	var nodes []*models.FileNode
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_folder = ? AND is_active = ?", userID, models.FlagNo, models.FlagYes).
		Order("id").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// GetFileAnyUser returns a file node by ID without tenant scoping.
// Only the processor uses this: events carry the user, but recovery
// scans do not.
func (s *GORMStore) GetFileAnyUser(ctx context.Context, nodeID int64) (*models.FileNode, error) {
	var node models.FileNode
	err := s.db.WithContext(ctx).Where("id = ?", nodeID).First(&node).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNodeNotFound)
	}
	return &node, nil
}

// escapeLike escapes SQL LIKE metacharacters in user-supplied keywords.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
