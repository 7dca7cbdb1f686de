package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/inference"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

const summarySystemPrompt = "You summarize handwritten notebooks. " +
	"Given the transcript of a notebook, respond with JSON: " +
	`{"title": string, "summary": string, "tags": [string]}. ` +
	"Respond with JSON only."

// summaryModule aggregates the per-page OCR text into a transcript and
// asks the inference service for a structured summary. Both documents
// are upserted under UUIDs derived from the file's storage key, so
// reprocessing the same content rewrites in place.
type summaryModule struct {
	store *store.GORMStore
	infer inference.Client
}

func (m *summaryModule) Name() string     { return "summary" }
func (m *summaryModule) TaskType() string { return models.TaskTypeSummary }

func (m *summaryModule) Needed(ctx context.Context, file *models.FileNode, _ *models.NotePage) (bool, error) {
	task, err := m.store.GetTask(ctx, file.ID, models.TaskTypeSummary, models.GlobalTaskKey)
	if err != nil || task.Status != models.TaskCompleted {
		return true, nil
	}
	if _, err := m.store.GetSummary(ctx, summaryID(file.StorageKey, models.SummaryKindSummary)); err != nil {
		return true, nil
	}
	return false, nil
}

func (m *summaryModule) Process(ctx context.Context, file *models.FileNode, _ *models.NotePage) error {
	pages, err := m.store.ListNotePages(ctx, file.ID)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, p := range pages {
		if p.TextContent == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s\n", p.PageIndex+1, p.TextContent)
	}
	transcript := sb.String()
	if transcript == "" {
		logger.Debug("no transcribed text to summarize", logger.KeyFileID, file.ID)
		return nil
	}

	raw, err := m.infer.Complete(ctx, summarySystemPrompt, transcript)
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}
	title, content, tags := parseSummaryReply(raw, file.Name)

	if err := m.store.UpsertSummary(ctx, &models.Summary{
		ID:      summaryID(file.StorageKey, models.SummaryKindSummary),
		UserID:  file.UserID,
		FileID:  file.ID,
		Kind:    models.SummaryKindSummary,
		Title:   title,
		Content: content,
	}); err != nil {
		return err
	}
	if err := m.store.UpsertSummary(ctx, &models.Summary{
		ID:      summaryID(file.StorageKey, models.SummaryKindTranscript),
		UserID:  file.UserID,
		FileID:  file.ID,
		Kind:    models.SummaryKindTranscript,
		Title:   file.Name,
		Content: transcript,
	}); err != nil {
		return err
	}

	if len(tags) > 0 {
		rows := make([]*models.SummaryTag, 0, len(tags))
		sid := summaryID(file.StorageKey, models.SummaryKindSummary)
		for _, tag := range tags {
			rows = append(rows, &models.SummaryTag{
				ID:        uuid.NewString(),
				SummaryID: sid,
				Tag:       tag,
			})
		}
		if err := m.store.ReplaceSummaryTags(ctx, sid, rows); err != nil {
			return err
		}
	}
	return nil
}

// summaryID derives the stable summary UUID for a file's content.
func summaryID(storageKey, kind string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("inkvault:"+storageKey+":"+kind)).String()
}

type summaryReply struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// parseSummaryReply decodes the model's JSON, tolerating fenced code
// blocks. An undecodable reply becomes the summary body verbatim.
func parseSummaryReply(raw, fallbackTitle string) (title, content string, tags []string) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	var reply summaryReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &reply); err != nil || reply.Summary == "" {
		return fallbackTitle, raw, nil
	}
	if reply.Title == "" {
		reply.Title = fallbackTitle
	}
	return reply.Title, reply.Summary, reply.Tags
}
