package dedup

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/ingestpipe/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckWholeFileFindsProcessedDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := NewEngine(s)

	bizID, _ := s.EnsureBusiness(ctx, "Acme")
	id, err := s.CreateFile(ctx, store.FileRecord{BusinessID: bizID, FileName: "a.pdf", FileType: "pdf", Metadata: "{}"}, "hash1")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := s.FinishFile(ctx, id, 1, 1, 0); err != nil {
		t.Fatalf("FinishFile: %v", err)
	}

	rec, err := e.CheckWholeFile(ctx, "hash1")
	if err != nil {
		t.Fatalf("CheckWholeFile: %v", err)
	}
	if rec == nil || rec.ID != id {
		t.Fatalf("expected to find processed file, got %+v", rec)
	}

	none, err := e.CheckWholeFile(ctx, "unseen-hash")
	if err != nil {
		t.Fatalf("CheckWholeFile: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no match for unseen hash, got %+v", none)
	}
}

func TestFilterNewChunksExcludesSameFileDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e := NewEngine(s)

	bizID, _ := s.EnsureBusiness(ctx, "Acme")
	fileID, err := s.CreateFile(ctx, store.FileRecord{BusinessID: bizID, FileName: "a.txt", FileType: "txt", Metadata: "{}"}, "h1")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := s.InsertChunk(ctx, tx, store.ChunkRecord{
			FileID: fileID, BusinessID: bizID, ChunkIndex: 0, Text: "x", CleanedText: "x",
			SemanticHash: "dup-hash", Metadata: "{}", ReasoningIngestion: "{}",
		})
		return err
	})
	if err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}

	newIdx, err := e.FilterNewChunks(ctx, fileID, []string{"dup-hash", "fresh-hash"})
	if err != nil {
		t.Fatalf("FilterNewChunks: %v", err)
	}
	if len(newIdx) != 1 || newIdx[0] != 1 {
		t.Fatalf("expected only index 1 (fresh-hash) to survive, got %v", newIdx)
	}
}
