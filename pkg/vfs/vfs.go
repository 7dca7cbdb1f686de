// Package vfs implements the database-backed virtual filesystem: one
// private tree per user with soft delete, a recycle bin, and two logical
// views over the same physical nodes. The device view shows category
// containers at the root; the web view flattens them away. Node IDs are
// identical between views.
package vfs

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// VFS exposes ownership-checked tree operations. All methods scope every
// row access by the calling user's ID; nodes belonging to other tenants
// are indistinguishable from absent ones.
type VFS struct {
	store *store.GORMStore
}

// New creates a VFS on the given store.
func New(s *store.GORMStore) *VFS {
	return &VFS{store: s}
}

// Store exposes the underlying store for collaborating services.
func (v *VFS) Store() *store.GORMStore {
	return v.store
}

// CleanPath normalizes a logical path to "/a/b" form.
func CleanPath(p string) string {
	p = "/" + strings.Trim(strings.TrimSpace(p), "/")
	return path.Clean(p)
}

// SplitPath returns the segments of a cleaned path, nil for the root.
func SplitPath(p string) []string {
	p = CleanPath(p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// splitExt splits "report.note" into ("report", ".note"). Directories
// and dotless names return an empty extension.
func splitExt(name string) (string, string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// freeName returns name if no active sibling of the same kind carries
// it, otherwise the first "name(N)" (before the extension) that is free.
func (v *VFS) freeName(ctx context.Context, userID, parentID int64, name string, isFolder bool) (string, error) {
	if _, err := v.store.FindChild(ctx, userID, parentID, name, isFolder); err == models.ErrNodeNotFound {
		return name, nil
	} else if err != nil {
		return "", err
	}

	base, ext := splitExt(name)
	if isFolder {
		base, ext = name, ""
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, n, ext)
		if _, err := v.store.FindChild(ctx, userID, parentID, candidate, isFolder); err == models.ErrNodeNotFound {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}

// resolveName applies the collision policy: autorename picks a free
// sibling name, otherwise an existing sibling is a conflict. Creates
// that race past this check lose on the uniq_active_sibling index.
func (v *VFS) resolveName(ctx context.Context, userID, parentID int64, name string, isFolder, autorename bool) (string, error) {
	if autorename {
		return v.freeName(ctx, userID, parentID, name, isFolder)
	}
	if _, err := v.store.FindChild(ctx, userID, parentID, name, isFolder); err == nil {
		return "", models.ErrNameConflict
	} else if err != models.ErrNodeNotFound {
		return "", err
	}
	return name, nil
}

// requireFolder loads a node and checks it is an active folder. Parent 0
// is the implicit root and always passes.
func (v *VFS) requireFolder(ctx context.Context, userID, nodeID int64) error {
	if nodeID == models.RootParentID {
		return nil
	}
	node, err := v.store.GetNode(ctx, userID, nodeID)
	if err != nil {
		return err
	}
	if !node.Folder() {
		return models.ErrNotAFolder
	}
	return nil
}
