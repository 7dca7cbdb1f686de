package processor

import (
	"context"
	"fmt"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// hashingModule parses the notebook and reconciles the NotePage table
// with reality: new pages appear, edited pages lose their derived data
// and downstream task rows, vanished pages are removed along with their
// cache artifacts.
type hashingModule struct {
	store    *store.GORMStore
	blobs    *blob.Store
	renderer Renderer
}

func (m *hashingModule) Name() string     { return "hashing" }
func (m *hashingModule) TaskType() string { return models.TaskTypeHashing }

// Needed always returns true: hashing is the change detector, so it runs
// on every pass. Unchanged pages cost one hash comparison each.
func (m *hashingModule) Needed(ctx context.Context, file *models.FileNode, page *models.NotePage) (bool, error) {
	return true, nil
}

func (m *hashingModule) Process(ctx context.Context, file *models.FileNode, _ *models.NotePage) error {
	rc, err := m.blobs.Open(ctx, blob.BucketUserData, file.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to open notebook blob: %w", err)
	}
	defer rc.Close()

	parsed, err := m.renderer.EnumeratePages(ctx, rc)
	if err != nil {
		return fmt.Errorf("failed to parse notebook: %w", err)
	}

	existing, err := m.store.ListNotePages(ctx, file.ID)
	if err != nil {
		return err
	}
	existingByID := make(map[string]*models.NotePage, len(existing))
	for _, p := range existing {
		existingByID[p.PageID] = p
	}

	seen := make(map[string]bool, len(parsed))
	var changed int
	for _, ref := range parsed {
		seen[ref.PageID] = true
		row := &models.NotePage{
			FileID:      file.ID,
			PageID:      ref.PageID,
			PageIndex:   ref.Index,
			ContentHash: ref.ContentHash,
		}
		if prev, ok := existingByID[ref.PageID]; ok && prev.ContentHash == ref.ContentHash {
			// Unchanged page keeps its derived data through the upsert.
			row.TextContent = prev.TextContent
			row.Embedding = prev.Embedding
		} else if ok {
			changed++
			if err := m.store.DeleteTasksForKey(ctx, file.ID, models.PageTaskKey(ref.PageID)); err != nil {
				return err
			}
		}
		if err := m.store.UpsertNotePage(ctx, row); err != nil {
			return err
		}
	}

	var removed []string
	for _, p := range existing {
		if !seen[p.PageID] {
			removed = append(removed, p.PageID)
		}
	}
	if len(removed) > 0 {
		if err := m.store.DeleteNotePages(ctx, file.ID, removed); err != nil {
			return err
		}
		for _, pageID := range removed {
			if err := m.store.DeleteTasksForKey(ctx, file.ID, models.PageTaskKey(pageID)); err != nil {
				return err
			}
			if err := m.blobs.Delete(ctx, blob.BucketCache, cachePageKey(file.ID, pageID)); err != nil {
				logger.Warn("failed to drop cache raster for removed page",
					logger.KeyFileID, file.ID,
					logger.KeyPageID, pageID,
					logger.Err(err))
			}
		}
	}

	logger.Debug("notebook hashed",
		logger.KeyFileID, file.ID,
		logger.KeyCount, len(parsed),
		"changed", changed,
		"removed", len(removed))
	return nil
}

// cachePageKey is the conventional CACHE key for a page raster.
func cachePageKey(fileID int64, pageID string) string {
	return fmt.Sprintf("%d/pages/%s.png", fileID, pageID)
}

// cachePagePrefix covers every raster of a file.
func cachePagePrefix(fileID int64) string {
	return fmt.Sprintf("%d/pages/", fileID)
}
