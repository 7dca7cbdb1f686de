package vfs

import (
	"context"

	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// Bootstrap creates the fixed directory skeleton for a new user: the
// category containers with their well-known children plus the plain root
// defaults. Idempotent: folders already present are left alone.
func (v *VFS) Bootstrap(ctx context.Context, userID int64) error {
	return v.store.Transaction(ctx, func(tx *store.GORMStore) error {
		txv := New(tx)
		for container, children := range containerChildren {
			containerID, err := txv.ensureFolder(ctx, userID, models.RootParentID, container)
			if err != nil {
				return err
			}
			for _, child := range children {
				if _, err := txv.ensureFolder(ctx, userID, containerID, child); err != nil {
					return err
				}
			}
		}
		for _, name := range rootDefaults {
			if _, err := txv.ensureFolder(ctx, userID, models.RootParentID, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (v *VFS) ensureFolder(ctx context.Context, userID, parentID int64, name string) (int64, error) {
	n, err := v.store.FindChild(ctx, userID, parentID, name, true)
	if err == nil {
		return n.ID, nil
	}
	if err != models.ErrNodeNotFound {
		return 0, err
	}
	node := &models.FileNode{
		UserID:   userID,
		ParentID: parentID,
		Name:     name,
		IsFolder: models.FlagYes,
	}
	if err := v.store.CreateNode(ctx, node); err != nil {
		return 0, err
	}
	return node.ID, nil
}
