package search

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

type fakeEmbedder struct {
	vec  []float64
	fail bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.fail {
		return nil, fmt.Errorf("backend down")
	}
	return f.vec, nil
}

func (f *fakeEmbedder) Transcribe(ctx context.Context, image []byte) (string, error) {
	return "", nil
}

func (f *fakeEmbedder) Complete(ctx context.Context, system, prompt string) (string, error) {
	return "", nil
}

func newSearchStore(t *testing.T) *store.GORMStore {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedPage creates a file node and one embedded page under it.
func seedPage(t *testing.T, s *store.GORMStore, userID, fileID int64, name, pageID, text string, vec []float64) {
	t.Helper()
	ctx := context.Background()
	node := &models.FileNode{
		ID: fileID, UserID: userID, Name: name,
		IsFolder: models.FlagNo, StorageKey: fmt.Sprintf("k%d", fileID),
	}
	if err := s.CreateNode(ctx, node); err != nil {
		t.Fatal(err)
	}
	encoded, _ := json.Marshal(vec)
	if err := s.UpsertNotePage(ctx, &models.NotePage{
		FileID: fileID, PageID: pageID, PageIndex: 0,
		ContentHash: "h", TextContent: text, Embedding: string(encoded),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	s := newSearchStore(t)
	infer := &fakeEmbedder{vec: []float64{1, 0, 0}}
	svc := New(s, infer)

	seedPage(t, s, 1, 10, "meeting.note", "P20240315100000aa", "project kickoff agenda", []float64{1, 0, 0})
	seedPage(t, s, 1, 11, "journal.note", "P20230101090000bb", "weekend travel plans", []float64{0, 1, 0})
	seedPage(t, s, 2, 12, "other.note", "P20240315100000cc", "someone else's page", []float64{1, 0, 0})

	t.Run("ranks by cosine similarity", func(t *testing.T) {
		results, err := svc.Search(ctx, 1, Query{Text: "kickoff"})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		if results[0].FileID != 10 {
			t.Errorf("top result = %d, want 10", results[0].FileID)
		}
		if results[0].Score <= results[1].Score {
			t.Errorf("scores not descending: %f, %f", results[0].Score, results[1].Score)
		}
		if results[0].TextPreview != "project kickoff agenda" {
			t.Errorf("preview = %q", results[0].TextPreview)
		}
	})

	t.Run("never crosses tenants", func(t *testing.T) {
		results, err := svc.Search(ctx, 1, Query{Text: "anything"})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.FileID == 12 {
				t.Error("result leaked from another user")
			}
		}
	})

	t.Run("name filter", func(t *testing.T) {
		results, err := svc.Search(ctx, 1, Query{Text: "x", NameFilter: "JOURNAL"})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].FileID != 11 {
			t.Errorf("unexpected results: %+v", results)
		}
	})

	t.Run("date window", func(t *testing.T) {
		results, err := svc.Search(ctx, 1, Query{
			Text:      "x",
			DateAfter: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].FileID != 10 {
			t.Errorf("unexpected results: %+v", results)
		}
	})

	t.Run("top_n truncates", func(t *testing.T) {
		results, err := svc.Search(ctx, 1, Query{Text: "x", TopN: 1})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Errorf("results = %d, want 1", len(results))
		}
	})

	t.Run("embedding failure degrades to empty", func(t *testing.T) {
		infer.fail = true
		defer func() { infer.fail = false }()
		results, err := svc.Search(ctx, 1, Query{Text: "x"})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Errorf("expected empty results, got %d", len(results))
		}
	})
}

func TestInferPageDate(t *testing.T) {
	tests := []struct {
		id   string
		ok   bool
		want time.Time
	}{
		{"P20240315100000abc", true, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)},
		{"P20240315100000", true, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)},
		{"P2024031510", false, time.Time{}},
		{"X20240315100000", false, time.Time{}},
		{"Pnotadate123456", false, time.Time{}},
	}
	for _, tt := range tests {
		got, ok := InferPageDate(tt.id)
		if ok != tt.ok {
			t.Errorf("InferPageDate(%q) ok = %v, want %v", tt.id, ok, tt.ok)
			continue
		}
		if ok && !got.Equal(tt.want) {
			t.Errorf("InferPageDate(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s, ok := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); !ok || s < 0.999 {
		t.Errorf("identical vectors = %f, %v", s, ok)
	}
	if s, ok := cosineSimilarity([]float64{1, 0}, []float64{0, 1}); !ok || s > 0.001 {
		t.Errorf("orthogonal vectors = %f, %v", s, ok)
	}
	if _, ok := cosineSimilarity([]float64{1}, []float64{1, 2}); ok {
		t.Error("dimension mismatch accepted")
	}
	if _, ok := cosineSimilarity([]float64{0, 0}, []float64{1, 2}); ok {
		t.Error("zero vector accepted")
	}
}
