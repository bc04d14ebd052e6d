package taxonomy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/ingestpipe/llm"
	"github.com/brunobiangulo/ingestpipe/store"
)

// stubEmbedder returns deterministic embeddings so cosine similarity is
// predictable: identical texts get identical vectors.
type stubEmbedder struct{}

func (stubEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{}, nil
}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		var sum float32
		for _, r := range t {
			sum += float32(r)
		}
		out[i] = []float32{sum, float32(len(t))}
	}
	return out, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(filepath.Join(dir, "test.db"), 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewRegistry(s, stubEmbedder{})
}

func TestResolveOrCreateIsCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	id1, err := r.ResolveOrCreate(ctx, "content", "Finance")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	id2, err := r.ResolveOrCreate(ctx, "content", "finance")
	if err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected case-insensitive match to return the same id, got %q and %q", id1, id2)
	}
}

func TestBestMatchFallsBackBelowConfidenceFloor(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.ResolveOrCreate(ctx, "content", "Finance"); err != nil {
		t.Fatalf("ResolveOrCreate: %v", err)
	}

	match, err := r.BestMatch(ctx, "completely unrelated text about gardening")
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if match.Category != uncategorizedCategory || match.Subcategory != generalBusinessSub {
		t.Fatalf("expected fallback match, got %+v", match)
	}
}

func TestBestMatchNoCategories(t *testing.T) {
	r := newTestRegistry(t)
	match, err := r.BestMatch(context.Background(), "anything")
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if match.Category != uncategorizedCategory {
		t.Fatalf("expected fallback with no categories, got %+v", match)
	}
}

func TestSyncMasterDocumentIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	doc := map[string]interface{}{
		"version":      "1.0",
		"last_updated": "2026-01-01",
		"description":  "test taxonomy",
		"finance": map[string]interface{}{
			"values": []string{"Budget", "Revenue"},
			"synonyms": map[string][]string{
				"Revenue": {"Income", "Sales"},
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "taxonomy_master.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("writing master document: %v", err)
	}

	first, err := r.SyncMasterDocument(ctx, path)
	if err != nil {
		t.Fatalf("SyncMasterDocument: %v", err)
	}
	if first.Inserted != 2 {
		t.Fatalf("expected 2 inserts, got %+v", first)
	}

	second, err := r.SyncMasterDocument(ctx, path)
	if err != nil {
		t.Fatalf("SyncMasterDocument (rerun): %v", err)
	}
	if second.Inserted != 0 || second.Skipped != 2 {
		t.Fatalf("expected idempotent rerun to skip, got %+v", second)
	}
}
