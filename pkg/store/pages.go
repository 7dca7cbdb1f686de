package store

import (
	"context"
	"strings"

	"gorm.io/gorm/clause"

	"github.com/inkvault/inkvault/pkg/models"
)

// ============================================
// NOTE PAGE OPERATIONS
// ============================================

// UpsertNotePage inserts or updates a page row keyed by (file_id, page_id).
func (s *GORMStore) UpsertNotePage(ctx context.Context, page *models.NotePage) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "file_id"}, {Name: "page_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"page_index", "content_hash", "text_content", "embedding", "update_time",
			}),
		}).
		Create(page).Error
}

func (s *GORMStore) GetNotePage(ctx context.Context, fileID int64, pageID string) (*models.NotePage, error) {
	var page models.NotePage
	err := s.db.WithContext(ctx).
		Where("file_id = ? AND page_id = ?", fileID, pageID).
		First(&page).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrNodeNotFound)
	}
	return &page, nil
}

func (s *GORMStore) ListNotePages(ctx context.Context, fileID int64) ([]*models.NotePage, error) {
	var pages []*models.NotePage
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("page_index").
		Find(&pages).Error
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// UpdatePageText stores the OCR text for one page.
func (s *GORMStore) UpdatePageText(ctx context.Context, fileID int64, pageID, text string) error {
	return s.db.WithContext(ctx).
		Model(&models.NotePage{}).
		Where("file_id = ? AND page_id = ?", fileID, pageID).
		Update("text_content", text).Error
}

// UpdatePageEmbedding stores the embedding JSON for one page.
func (s *GORMStore) UpdatePageEmbedding(ctx context.Context, fileID int64, pageID, embeddingJSON string) error {
	return s.db.WithContext(ctx).
		Model(&models.NotePage{}).
		Where("file_id = ? AND page_id = ?", fileID, pageID).
		Update("embedding", embeddingJSON).Error
}

// DeleteNotePages removes page rows by page ID.
func (s *GORMStore) DeleteNotePages(ctx context.Context, fileID int64, pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("file_id = ? AND page_id IN ?", fileID, pageIDs).
		Delete(&models.NotePage{}).Error
}

// DeleteAllNotePages removes every page row for a file.
func (s *GORMStore) DeleteAllNotePages(ctx context.Context, fileID int64) error {
	return deleteByField[models.NotePage](s.db, ctx, "file_id", fileID)
}

// EmbeddedPageRef joins a note page with its owning file node for search.
type EmbeddedPageRef struct {
	FileID      int64
	FileName    string
	PageID      string
	PageIndex   int
	TextContent string
	Embedding   string
}

// ListEmbeddedPages returns the user's pages that carry an embedding,
// optionally filtered by a case-insensitive substring on the file name.
func (s *GORMStore) ListEmbeddedPages(ctx context.Context, userID int64, nameFilter string) ([]*EmbeddedPageRef, error) {
	q := s.db.WithContext(ctx).
		Table("note_pages").
		Select("note_pages.file_id, user_files.name AS file_name, note_pages.page_id, note_pages.page_index, note_pages.text_content, note_pages.embedding").
		Joins("JOIN user_files ON user_files.id = note_pages.file_id").
		Where("user_files.user_id = ? AND user_files.is_active = ?", userID, models.FlagYes).
		Where("note_pages.embedding IS NOT NULL AND note_pages.embedding != ''")
	if nameFilter != "" {
		q = q.Where("LOWER(user_files.name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(nameFilter))+"%")
	}

	var refs []*EmbeddedPageRef
	if err := q.Scan(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}
