package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/inference"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// pngModule rasterizes one page into the cache bucket.
type pngModule struct {
	store    *store.GORMStore
	blobs    *blob.Store
	renderer Renderer
}

func (m *pngModule) Name() string     { return "png" }
func (m *pngModule) TaskType() string { return models.TaskTypePNG }

func (m *pngModule) Needed(ctx context.Context, file *models.FileNode, page *models.NotePage) (bool, error) {
	task, err := m.store.GetTask(ctx, file.ID, models.TaskTypePNG, models.PageTaskKey(page.PageID))
	if err != nil || task.Status != models.TaskCompleted {
		return true, nil
	}
	exists, err := m.blobs.Exists(ctx, blob.BucketCache, cachePageKey(file.ID, page.PageID))
	if err != nil {
		return true, err
	}
	return !exists, nil
}

func (m *pngModule) Process(ctx context.Context, file *models.FileNode, page *models.NotePage) error {
	rc, err := m.blobs.Open(ctx, blob.BucketUserData, file.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to open notebook blob: %w", err)
	}
	defer rc.Close()

	png, err := m.renderer.RenderPage(ctx, rc, page.PageID)
	if err != nil {
		return fmt.Errorf("failed to render page %s: %w", page.PageID, err)
	}
	if _, err := m.blobs.Put(ctx, blob.BucketCache, cachePageKey(file.ID, page.PageID), png); err != nil {
		return fmt.Errorf("failed to store page raster: %w", err)
	}
	return nil
}

// ocrModule transcribes a page raster into text through the inference
// service. It depends on the PNG stage's cache artifact.
type ocrModule struct {
	store *store.GORMStore
	blobs *blob.Store
	infer inference.Client
}

func (m *ocrModule) Name() string     { return "ocr" }
func (m *ocrModule) TaskType() string { return models.TaskTypeOCR }

func (m *ocrModule) Needed(ctx context.Context, file *models.FileNode, page *models.NotePage) (bool, error) {
	task, err := m.store.GetTask(ctx, file.ID, models.TaskTypeOCR, models.PageTaskKey(page.PageID))
	if err != nil || task.Status != models.TaskCompleted {
		return true, nil
	}
	current, err := m.store.GetNotePage(ctx, file.ID, page.PageID)
	if err != nil {
		return true, err
	}
	return current.TextContent == "", nil
}

func (m *ocrModule) Process(ctx context.Context, file *models.FileNode, page *models.NotePage) error {
	png, err := m.blobs.Get(ctx, blob.BucketCache, cachePageKey(file.ID, page.PageID))
	if err != nil {
		return fmt.Errorf("page raster not available: %w", err)
	}
	text, err := m.infer.Transcribe(ctx, png)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	return m.store.UpdatePageText(ctx, file.ID, page.PageID, text)
}

// embeddingModule embeds a page's OCR text for semantic search. It
// depends on non-empty text_content.
type embeddingModule struct {
	store *store.GORMStore
	infer inference.Client
}

func (m *embeddingModule) Name() string     { return "embedding" }
func (m *embeddingModule) TaskType() string { return models.TaskTypeEmbedding }

func (m *embeddingModule) Needed(ctx context.Context, file *models.FileNode, page *models.NotePage) (bool, error) {
	task, err := m.store.GetTask(ctx, file.ID, models.TaskTypeEmbedding, models.PageTaskKey(page.PageID))
	if err != nil || task.Status != models.TaskCompleted {
		return true, nil
	}
	current, err := m.store.GetNotePage(ctx, file.ID, page.PageID)
	if err != nil {
		return true, err
	}
	return current.Embedding == "", nil
}

func (m *embeddingModule) Process(ctx context.Context, file *models.FileNode, page *models.NotePage) error {
	current, err := m.store.GetNotePage(ctx, file.ID, page.PageID)
	if err != nil {
		return err
	}
	if current.TextContent == "" {
		return fmt.Errorf("page %s has no text to embed", page.PageID)
	}
	vector, err := m.infer.Embed(ctx, current.TextContent)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	encoded, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return m.store.UpdatePageEmbedding(ctx, file.ID, page.PageID, string(encoded))
}
