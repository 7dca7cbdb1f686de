// Package search ranks notebook pages against a free-text query by
// cosine similarity over the embeddings the pipeline stored.
package search

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/inference"
	"github.com/inkvault/inkvault/pkg/store"
)

// DefaultTopN bounds the result list when the caller does not.
const DefaultTopN = 10

// previewLength is how much page text a result carries.
const previewLength = 200

// Result is one ranked page.
type Result struct {
	FileID      int64     `json:"file_id"`
	FileName    string    `json:"file_name"`
	PageID      string    `json:"page_id"`
	PageIndex   int       `json:"page_index"`
	Score       float64   `json:"score"`
	TextPreview string    `json:"text_preview"`
	Date        time.Time `json:"date,omitempty"`
}

// Query carries the search parameters.
type Query struct {
	Text       string
	TopN       int
	NameFilter string
	DateAfter  time.Time
	DateBefore time.Time
}

// Service performs semantic search over a user's embedded pages.
type Service struct {
	store *store.GORMStore
	infer inference.Client
}

// New creates the search service.
func New(s *store.GORMStore, infer inference.Client) *Service {
	return &Service{store: s, infer: infer}
}

// Search embeds the query, scores the user's candidate pages and returns
// the top matches. An inference failure yields an empty result list, not
// an error: search degrades, it does not break the caller.
func (s *Service) Search(ctx context.Context, userID int64, q Query) ([]*Result, error) {
	if q.TopN <= 0 {
		q.TopN = DefaultTopN
	}

	queryVec, err := s.infer.Embed(ctx, q.Text)
	if err != nil {
		logger.Warn("query embedding failed", logger.KeyUserID, userID, logger.Err(err))
		return []*Result{}, nil
	}

	candidates, err := s.store.ListEmbeddedPages(ctx, userID, q.NameFilter)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(candidates))
	for _, c := range candidates {
		date, dated := InferPageDate(c.PageID)
		if dated {
			if !q.DateAfter.IsZero() && date.Before(q.DateAfter) {
				continue
			}
			if !q.DateBefore.IsZero() && date.After(q.DateBefore) {
				continue
			}
		} else if !q.DateAfter.IsZero() || !q.DateBefore.IsZero() {
			continue
		}

		var vec []float64
		if err := json.Unmarshal([]byte(c.Embedding), &vec); err != nil {
			logger.Debug("undecodable embedding",
				logger.KeyFileID, c.FileID,
				logger.KeyPageID, c.PageID)
			continue
		}
		score, ok := cosineSimilarity(queryVec, vec)
		if !ok {
			continue
		}
		results = append(results, &Result{
			FileID:      c.FileID,
			FileName:    c.FileName,
			PageID:      c.PageID,
			PageIndex:   c.PageIndex,
			Score:       score,
			TextPreview: preview(c.TextContent),
			Date:        date,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > q.TopN {
		results = results[:q.TopN]
	}
	return results, nil
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched dimensions or a zero vector yield ok=false.
func cosineSimilarity(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}

// InferPageDate extracts the creation timestamp a page ID encodes
// ("P" + yyyyMMddHHmmss + random suffix). IDs in other shapes carry no
// date.
func InferPageDate(pageID string) (time.Time, bool) {
	if len(pageID) < 15 || pageID[0] != 'P' {
		return time.Time{}, false
	}
	ts, err := time.Parse("20060102150405", pageID[1:15])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
