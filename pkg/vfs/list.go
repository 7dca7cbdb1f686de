package vfs

import (
	"context"

	"github.com/inkvault/inkvault/pkg/models"
)

// ListDirectory returns the active children of a folder. With
// flatten=true and parentID=0 the category containers disappear: their
// well-known children are lifted to the root listing in their place.
func (v *VFS) ListDirectory(ctx context.Context, userID, parentID int64, flatten bool) ([]*models.FileNode, error) {
	if err := v.requireFolder(ctx, userID, parentID); err != nil {
		return nil, err
	}
	children, err := v.store.ListChildren(ctx, userID, parentID)
	if err != nil {
		return nil, err
	}
	if !flatten || parentID != models.RootParentID {
		return children, nil
	}

	flattened := make([]*models.FileNode, 0, len(children))
	for _, child := range children {
		if child.Folder() && isContainer(child.Name) {
			inner, err := v.store.ListChildren(ctx, userID, child.ID)
			if err != nil {
				return nil, err
			}
			flattened = append(flattened, inner...)
			continue
		}
		flattened = append(flattened, child)
	}
	return flattened, nil
}

// ListRecursive returns every active descendant of a folder,
// breadth-first. parentID=0 walks the whole tree.
func (v *VFS) ListRecursive(ctx context.Context, userID, parentID int64) ([]*models.FileNode, error) {
	if err := v.requireFolder(ctx, userID, parentID); err != nil {
		return nil, err
	}
	var all []*models.FileNode
	frontier := []int64{parentID}
	for len(frontier) > 0 {
		var next []int64
		for _, id := range frontier {
			children, err := v.store.ListChildren(ctx, userID, id)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				all = append(all, child)
				if child.Folder() {
					next = append(next, child.ID)
				}
			}
		}
		frontier = next
	}
	return all, nil
}

// SearchFiles returns active nodes whose name contains the keyword,
// case-insensitively, anywhere in the user's tree.
func (v *VFS) SearchFiles(ctx context.Context, userID int64, keyword string) ([]*models.FileNode, error) {
	return v.store.SearchNodes(ctx, userID, keyword)
}
