package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "test.db"), 4)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureBusinessIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.EnsureBusiness(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("EnsureBusiness: %v", err)
	}
	id2, err := s.EnsureBusiness(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("EnsureBusiness: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same business id, got %q and %q", id1, id2)
	}
}

func TestFileLifecycleAndTier1Dedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bizID, err := s.EnsureBusiness(ctx, "Acme Corp")
	if err != nil {
		t.Fatalf("EnsureBusiness: %v", err)
	}

	hash := "deadbeef"
	id, err := s.CreateFile(ctx, FileRecord{
		BusinessID: bizID,
		FileName:   "report.pdf",
		FileType:   "pdf",
		Metadata:   `{"file_hash":"deadbeef"}`,
	}, hash)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	rec, err := s.GetFile(ctx, id)
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if rec.Status != FileStatusUploaded {
		t.Fatalf("expected uploaded status, got %q", rec.Status)
	}

	if err := s.SetFileStatus(ctx, id, FileStatusProcessing, ""); err != nil {
		t.Fatalf("SetFileStatus: %v", err)
	}
	if err := s.FinishFile(ctx, id, 10, 8, 2); err != nil {
		t.Fatalf("FinishFile: %v", err)
	}

	found, err := s.FindProcessedByHash(ctx, hash)
	if err != nil {
		t.Fatalf("FindProcessedByHash: %v", err)
	}
	if found == nil || found.ID != id {
		t.Fatalf("expected to find processed file by hash, got %+v", found)
	}
	if found.DedupRatio != 0.2 {
		t.Fatalf("expected dedup_ratio 0.2, got %v", found.DedupRatio)
	}

	// A hash with no processed File Record should not match.
	notFound, err := s.FindProcessedByHash(ctx, "other-hash")
	if err != nil {
		t.Fatalf("FindProcessedByHash: %v", err)
	}
	if notFound != nil {
		t.Fatalf("expected no match for unrelated hash, got %+v", notFound)
	}
}

func TestGlobalContentIndexUpsertIncrementsOccurrence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var firstID string
	var firstCount int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		firstID, firstCount, err = s.UpsertGlobalContent(ctx, tx, "hash1", "clean", "raw", 5, "", "pdf", "")
		return err
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if firstCount != 1 {
		t.Fatalf("expected first occurrence_count 1, got %d", firstCount)
	}

	var secondID string
	var secondCount int
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		secondID, secondCount, err = s.UpsertGlobalContent(ctx, tx, "hash1", "clean", "raw", 5, "", "pdf", "")
		return err
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if firstID != secondID {
		t.Fatalf("expected same entry id, got %q and %q", firstID, secondID)
	}
	if secondCount != 2 {
		t.Fatalf("expected second occurrence_count 2, got %d", secondCount)
	}

	entries, err := s.GlobalContentByHashes(ctx, []string{"hash1"})
	if err != nil {
		t.Fatalf("GlobalContentByHashes: %v", err)
	}
	if entries["hash1"].OccurrenceCount != 2 {
		t.Fatalf("expected occurrence_count 2, got %d", entries["hash1"].OccurrenceCount)
	}
}

func TestChunkDedupScopedToFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bizID, _ := s.EnsureBusiness(ctx, "Acme Corp")
	fileID, err := s.CreateFile(ctx, FileRecord{BusinessID: bizID, FileName: "a.txt", FileType: "txt", Metadata: "{}"}, "h1")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	otherFileID, err := s.CreateFile(ctx, FileRecord{BusinessID: bizID, FileName: "b.txt", FileType: "txt", Metadata: "{}"}, "h2")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := s.InsertChunk(ctx, tx, ChunkRecord{
			FileID: fileID, BusinessID: bizID, ChunkIndex: 0,
			Text: "hello", CleanedText: "hello", SemanticHash: "chash1",
			Metadata: "{}", ReasoningIngestion: "{}",
		})
		return err
	})
	if err != nil {
		t.Fatalf("InsertChunk: %v", err)
	}

	existing, err := s.ExistingChunkHashes(ctx, fileID, []string{"chash1", "chash2"})
	if err != nil {
		t.Fatalf("ExistingChunkHashes: %v", err)
	}
	if !existing["chash1"] || existing["chash2"] {
		t.Fatalf("unexpected existing set: %+v", existing)
	}

	// Same hash in a different file must not be seen as existing there.
	existingOther, err := s.ExistingChunkHashes(ctx, otherFileID, []string{"chash1"})
	if err != nil {
		t.Fatalf("ExistingChunkHashes: %v", err)
	}
	if existingOther["chash1"] {
		t.Fatalf("expected Tier-2 dedup to be scoped per file")
	}
}

func TestUpsertVectorsSkipsAlreadyMapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	emb := make([]float32, 4)
	point := VectorPoint{SemanticHash: "vhash1", Embedding: emb, FileID: "f1", SourceType: "pdf"}

	if err := s.UpsertVectors(ctx, []VectorPoint{point}); err != nil {
		t.Fatalf("first UpsertVectors: %v", err)
	}
	existing, err := s.ExistingVectorHashes(ctx, []string{"vhash1"})
	if err != nil {
		t.Fatalf("ExistingVectorHashes: %v", err)
	}
	if !existing["vhash1"] {
		t.Fatalf("expected vhash1 to be present")
	}

	// Re-upserting the same hash must not error or duplicate the vec_points row.
	if err := s.UpsertVectors(ctx, []VectorPoint{point}); err != nil {
		t.Fatalf("second UpsertVectors: %v", err)
	}
	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM vector_points WHERE semantic_hash = ?", "vhash1").Scan(&count); err != nil {
		t.Fatalf("counting vector_points: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one vector_points row, got %d", count)
	}
}

func TestResolveOrCreateCategoryCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.ResolveOrCreateCategory(ctx, "content", "Finance", "Auto-generated")
	if err != nil {
		t.Fatalf("ResolveOrCreateCategory: %v", err)
	}
	id2, err := s.ResolveOrCreateCategory(ctx, "content", "finance", "Auto-generated")
	if err != nil {
		t.Fatalf("ResolveOrCreateCategory: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected case-insensitive resolution, got %q and %q", id1, id2)
	}
}

func TestEntityLinkUniqueFingerprint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var id1, id2 string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		id1, err = s.InsertEntityLink(ctx, tx, EntityLink{EntityType: "chunk", EntityID: "c1", Fingerprint: "fp1"})
		return err
	})
	if err != nil {
		t.Fatalf("first InsertEntityLink: %v", err)
	}
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		id2, err = s.InsertEntityLink(ctx, tx, EntityLink{EntityType: "chunk", EntityID: "c2", Fingerprint: "fp1"})
		return err
	})
	if err != nil {
		t.Fatalf("second InsertEntityLink: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected duplicate fingerprint to resolve to the same link, got %q and %q", id1, id2)
	}
}
