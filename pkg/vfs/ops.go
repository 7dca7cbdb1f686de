package vfs

import (
	"context"
	"fmt"

	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// CreateDirectory creates a folder under parentID. With autorename the
// name is adjusted on collision, otherwise a same-name active folder is
// a conflict. A same-name file never conflicts with a folder.
func (v *VFS) CreateDirectory(ctx context.Context, userID, parentID int64, name string, autorename bool) (*models.FileNode, error) {
	var created *models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		if err := txv.requireFolder(ctx, userID, parentID); err != nil {
			return err
		}
		finalName, err := txv.resolveName(ctx, userID, parentID, name, true, autorename)
		if err != nil {
			return err
		}
		node := &models.FileNode{
			UserID:   userID,
			ParentID: parentID,
			Name:     finalName,
			IsFolder: models.FlagYes,
		}
		if err := tx.CreateNode(ctx, node); err != nil {
			return err
		}
		created = node
		return nil
	})
	return created, err
}

// CreateFile creates a file node referencing an already-stored blob.
func (v *VFS) CreateFile(ctx context.Context, userID, parentID int64, name, storageKey, md5 string, size int64, autorename bool) (*models.FileNode, error) {
	var created *models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		if err := txv.requireFolder(ctx, userID, parentID); err != nil {
			return err
		}
		finalName, err := txv.resolveName(ctx, userID, parentID, name, false, autorename)
		if err != nil {
			return err
		}
		node := &models.FileNode{
			UserID:     userID,
			ParentID:   parentID,
			Name:       finalName,
			IsFolder:   models.FlagNo,
			Size:       size,
			MD5:        md5,
			StorageKey: storageKey,
		}
		if err := tx.CreateNode(ctx, node); err != nil {
			return err
		}
		created = node
		return nil
	})
	return created, err
}

// RenameNode changes a node's name in place. System directories refuse.
func (v *VFS) RenameNode(ctx context.Context, userID, nodeID int64, newName string, autorename bool) (*models.FileNode, error) {
	var renamed *models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		node, err := tx.GetNode(ctx, userID, nodeID)
		if err != nil {
			return err
		}
		if err := txv.checkSystemDirectory(ctx, userID, node); err != nil {
			return err
		}
		if node.Name == newName {
			renamed = node
			return nil
		}
		finalName, err := txv.resolveName(ctx, userID, node.ParentID, newName, node.Folder(), autorename)
		if err != nil {
			return err
		}
		if err := tx.UpdateNodeLocation(ctx, userID, nodeID, node.ParentID, finalName); err != nil {
			return err
		}
		node.Name = finalName
		renamed = node
		return nil
	})
	return renamed, err
}

// MoveNode reparents a node, optionally renaming it. Moving a folder into
// itself or any descendant fails with ErrCyclicMove. A move that would
// land a node on its own current location still resolves the name, so an
// identity move autorenames rather than no-ops.
func (v *VFS) MoveNode(ctx context.Context, userID, nodeID, newParentID int64, newName string, autorename bool) (*models.FileNode, error) {
	var moved *models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		node, err := tx.GetNode(ctx, userID, nodeID)
		if err != nil {
			return err
		}
		if err := txv.checkSystemDirectory(ctx, userID, node); err != nil {
			return err
		}
		if err := txv.requireFolder(ctx, userID, newParentID); err != nil {
			return err
		}
		if node.Folder() {
			if err := txv.checkCycle(ctx, userID, nodeID, newParentID); err != nil {
				return err
			}
		}
		if newName == "" {
			newName = node.Name
		}
		finalName, err := txv.resolveName(ctx, userID, newParentID, newName, node.Folder(), autorename)
		if err != nil {
			return err
		}
		if err := tx.UpdateNodeLocation(ctx, userID, nodeID, newParentID, finalName); err != nil {
			return err
		}
		node.ParentID = newParentID
		node.Name = finalName
		moved = node
		return nil
	})
	return moved, err
}

// checkCycle rejects a move whose destination is the moved folder itself
// or lies inside it, walking the destination's ancestors to the root.
func (v *VFS) checkCycle(ctx context.Context, userID, nodeID, destID int64) error {
	current := destID
	for current != models.RootParentID {
		if current == nodeID {
			return models.ErrCyclicMove
		}
		parent, err := v.store.GetNode(ctx, userID, current)
		if err != nil {
			return err
		}
		current = parent.ParentID
	}
	return nil
}

// CopyNode deep-copies a node (and, for folders, its active subtree) into
// newParentID. File copies share the source's blob; content-addressed
// storage makes the copy free. Returns the new root node.
func (v *VFS) CopyNode(ctx context.Context, userID, nodeID, newParentID int64, autorename bool) (*models.FileNode, error) {
	var copied *models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		node, err := tx.GetNode(ctx, userID, nodeID)
		if err != nil {
			return err
		}
		if err := txv.requireFolder(ctx, userID, newParentID); err != nil {
			return err
		}
		if node.Folder() {
			if err := txv.checkCycle(ctx, userID, nodeID, newParentID); err != nil {
				return err
			}
		}
		finalName, err := txv.resolveName(ctx, userID, newParentID, node.Name, node.Folder(), autorename)
		if err != nil {
			return err
		}
		copied, err = txv.copySubtree(ctx, userID, node, newParentID, finalName)
		return err
	})
	return copied, err
}

func (v *VFS) copySubtree(ctx context.Context, userID int64, src *models.FileNode, parentID int64, name string) (*models.FileNode, error) {
	clone := &models.FileNode{
		UserID:     userID,
		ParentID:   parentID,
		Name:       name,
		IsFolder:   src.IsFolder,
		Size:       src.Size,
		MD5:        src.MD5,
		StorageKey: src.StorageKey,
	}
	if err := v.store.CreateNode(ctx, clone); err != nil {
		return nil, err
	}
	if !src.Folder() {
		return clone, nil
	}
	children, err := v.store.ListChildren(ctx, userID, src.ID)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if _, err := v.copySubtree(ctx, userID, child, clone.ID, child.Name); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// DeleteNode soft-deletes a node and its active subtree and records a
// recycle entry for the subtree root. The deleted file nodes are returned
// so callers can invalidate derived content.
func (v *VFS) DeleteNode(ctx context.Context, userID, nodeID int64) ([]*models.FileNode, error) {
	var deletedFiles []*models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		node, err := tx.GetNode(ctx, userID, nodeID)
		if err != nil {
			return err
		}
		if err := txv.checkSystemDirectory(ctx, userID, node); err != nil {
			return err
		}
		ids, err := tx.CollectSubtreeIDs(ctx, userID, nodeID, true)
		if err != nil {
			return err
		}
		for _, id := range ids {
			n, err := tx.GetNode(ctx, userID, id)
			if err != nil {
				return err
			}
			if !n.Folder() {
				deletedFiles = append(deletedFiles, n)
			}
		}
		if err := tx.SetNodesActive(ctx, userID, ids, false); err != nil {
			return err
		}
		return tx.CreateRecycleEntry(ctx, &models.RecycleEntry{
			UserID:           userID,
			NodeID:           nodeID,
			Name:             node.Name,
			IsFolder:         node.IsFolder,
			Size:             node.Size,
			OriginalParentID: node.ParentID,
		})
	})
	if err != nil {
		return nil, err
	}
	return deletedFiles, nil
}

// RestoreNode reactivates a recycled subtree. The node goes back under
// its original parent when that parent is still active, otherwise to the
// root. A name collision at the destination autorenames.
func (v *VFS) RestoreNode(ctx context.Context, userID, entryID int64) (*models.FileNode, error) {
	var restored *models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		entry, err := tx.GetRecycleEntry(ctx, userID, entryID)
		if err != nil {
			return err
		}
		node, err := tx.GetNodeAnyState(ctx, userID, entry.NodeID)
		if err != nil {
			return err
		}

		parentID := entry.OriginalParentID
		if parentID != models.RootParentID {
			if _, err := tx.GetNode(ctx, userID, parentID); err == models.ErrNodeNotFound {
				parentID = models.RootParentID
			} else if err != nil {
				return err
			}
		}

		// Relocate while the row is still inactive: the sibling index
		// only covers active rows, so the rename cannot trip it.
		name, err := txv.freeNameExcluding(ctx, userID, parentID, node.Name, node.Folder(), node.ID)
		if err != nil {
			return err
		}
		if parentID != node.ParentID || name != node.Name {
			if err := tx.UpdateNodeLocation(ctx, userID, node.ID, parentID, name); err != nil {
				return err
			}
		}

		ids, err := tx.CollectSubtreeIDs(ctx, userID, entry.NodeID, false)
		if err != nil {
			return err
		}
		if err := tx.SetNodesActive(ctx, userID, ids, true); err != nil {
			return err
		}
		node.ParentID = parentID
		node.Name = name
		node.IsActive = models.FlagYes
		restored = node
		return tx.DeleteRecycleEntries(ctx, userID, []int64{entryID})
	})
	return restored, err
}

// freeNameExcluding is freeName ignoring collisions with selfID, so a
// just-reactivated node does not collide with its own row.
func (v *VFS) freeNameExcluding(ctx context.Context, userID, parentID int64, name string, isFolder bool, selfID int64) (string, error) {
	taken := func(candidate string) (bool, error) {
		n, err := v.store.FindChild(ctx, userID, parentID, candidate, isFolder)
		if err == models.ErrNodeNotFound {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return n.ID != selfID, nil
	}

	if t, err := taken(name); err != nil {
		return "", err
	} else if !t {
		return name, nil
	}
	base, ext := splitExt(name)
	if isFolder {
		base, ext = name, ""
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		if t, err := taken(candidate); err != nil {
			return "", err
		} else if !t {
			return candidate, nil
		}
	}
}

// PurgeRecycleEntries permanently removes recycle entries and their node
// rows. Returns the purged file nodes so callers can drop derived data.
// Blobs stay: content addressing means another node may share them.
func (v *VFS) PurgeRecycleEntries(ctx context.Context, userID int64, entryIDs []int64) ([]*models.FileNode, error) {
	var purgedFiles []*models.FileNode
	err := v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		for _, entryID := range entryIDs {
			entry, err := tx.GetRecycleEntry(ctx, userID, entryID)
			if err != nil {
				return err
			}
			ids, err := tx.CollectSubtreeIDs(ctx, userID, entry.NodeID, false)
			if err != nil {
				return err
			}
			for _, id := range ids {
				n, err := tx.GetNodeAnyState(ctx, userID, id)
				if err == models.ErrNodeNotFound {
					continue
				}
				if err != nil {
					return err
				}
				if !n.Folder() {
					purgedFiles = append(purgedFiles, n)
				}
			}
			if err := tx.DeleteNodes(ctx, userID, ids); err != nil {
				return err
			}
			if err := tx.DeleteRecycleEntries(ctx, userID, []int64{entryID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purgedFiles, nil
}

// PurgeAllRecycle empties the recycle bin.
func (v *VFS) PurgeAllRecycle(ctx context.Context, userID int64) ([]*models.FileNode, error) {
	entries, err := v.store.ListRecycleEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return v.PurgeRecycleEntries(ctx, userID, ids)
}

// checkSystemDirectory rejects mutations of protected folders: category
// containers, their well-known children, and the root defaults, when
// they sit in their canonical position.
func (v *VFS) checkSystemDirectory(ctx context.Context, userID int64, node *models.FileNode) error {
	if !node.Folder() || !systemDirectories[node.Name] {
		return nil
	}
	atRootOrContainer := node.ParentID == models.RootParentID
	if !atRootOrContainer {
		parent, err := v.store.GetNode(ctx, userID, node.ParentID)
		if err != nil {
			return err
		}
		atRootOrContainer = parent.ParentID == models.RootParentID && isContainer(parent.Name)
	}
	if isSystemDirectory(node.Name, atRootOrContainer) {
		return models.ErrSystemDirectory
	}
	return nil
}
