package vfs

import (
	"context"
	"strconv"
	"strings"

	"github.com/inkvault/inkvault/pkg/models"
)

// ResolvePath walks a physical (device-view) path segment by segment and
// returns the node, or ErrNodeNotFound. The root path "/" resolves to a
// synthetic folder node with ID 0.
func (v *VFS) ResolvePath(ctx context.Context, userID int64, p string) (*models.FileNode, error) {
	segments := SplitPath(p)
	if len(segments) == 0 {
		return rootNode(userID), nil
	}

	parentID := models.RootParentID
	var node *models.FileNode
	for i, seg := range segments {
		n, err := v.store.FindChildAnyKind(ctx, userID, parentID, seg)
		if err != nil {
			return nil, err
		}
		if i < len(segments)-1 && !n.Folder() {
			return nil, models.ErrNodeNotFound
		}
		node = n
		parentID = n.ID
	}
	return node, nil
}

// ResolveFlattenedPath resolves a web-view path, where category
// containers are invisible. "/Note/a.note" maps to the physical
// "/NOTE/Note/a.note" when the first segment is a well-known container
// child; otherwise resolution falls through to the physical tree.
func (v *VFS) ResolveFlattenedPath(ctx context.Context, userID int64, p string) (*models.FileNode, error) {
	segments := SplitPath(p)
	if len(segments) > 0 {
		if container := containerOf(segments[0]); container != "" {
			node, err := v.ResolvePath(ctx, userID, "/"+container+"/"+strings.Join(segments, "/"))
			if err == nil {
				return node, nil
			}
			if err != models.ErrNodeNotFound {
				return nil, err
			}
		}
	}
	return v.ResolvePath(ctx, userID, p)
}

// rootNode fabricates the synthetic root folder.
func rootNode(userID int64) *models.FileNode {
	return &models.FileNode{
		ID:       models.RootParentID,
		UserID:   userID,
		ParentID: models.RootParentID,
		Name:     "/",
		IsFolder: models.FlagYes,
		IsActive: models.FlagYes,
	}
}

// EnsureDirectoryPath creates any missing folders along a physical path
// (mkdir -p) and returns the deepest folder's ID. An existing file in
// the way fails with CONFLICT semantics.
func (v *VFS) EnsureDirectoryPath(ctx context.Context, userID int64, p string) (int64, error) {
	segments := SplitPath(p)
	parentID := models.RootParentID
	for _, seg := range segments {
		n, err := v.store.FindChildAnyKind(ctx, userID, parentID, seg)
		switch err {
		case nil:
			if !n.Folder() {
				return 0, models.ErrNameConflict
			}
			parentID = n.ID
		case models.ErrNodeNotFound:
			node := &models.FileNode{
				UserID:   userID,
				ParentID: parentID,
				Name:     seg,
				IsFolder: models.FlagYes,
			}
			if err := v.store.CreateNode(ctx, node); err != nil {
				return 0, err
			}
			parentID = node.ID
		default:
			return 0, err
		}
	}
	return parentID, nil
}

// PathInfo is the logical location of a node in one of the two views.
type PathInfo struct {
	Path   string
	IDPath []int64
}

// GetPathInfo returns the node's path from the root and the IDs along
// it. With flatten=true a leading category container is stripped from
// both the path and the ID list when its immediate child is one of the
// container's well-known folders.
func (v *VFS) GetPathInfo(ctx context.Context, userID, nodeID int64, flatten bool) (*PathInfo, error) {
	if nodeID == models.RootParentID {
		return &PathInfo{Path: "/", IDPath: nil}, nil
	}

	var names []string
	var idPath []int64
	current := nodeID
	for current != models.RootParentID {
		node, err := v.store.GetNode(ctx, userID, current)
		if err != nil {
			return nil, err
		}
		names = append([]string{node.Name}, names...)
		idPath = append([]int64{node.ID}, idPath...)
		current = node.ParentID
	}

	if flatten && len(names) >= 2 && isContainer(names[0]) {
		if containerOf(names[1]) == names[0] {
			names = names[1:]
			idPath = idPath[1:]
		}
	}

	return &PathInfo{Path: "/" + strings.Join(names, "/"), IDPath: idPath}, nil
}

// FormatIDPath renders an ID path the way the vendor protocol expects.
func FormatIDPath(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return "/" + strings.Join(parts, "/")
}
