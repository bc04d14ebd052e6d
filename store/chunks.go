package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// NextChunkIndex returns max(existing chunk_index for file_id) + 1,
// the Relational Writer's dense-indexing step (C10 step 2).
func (s *Store) NextChunkIndex(ctx context.Context, fileID string) (int, error) {
	var maxIdx sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(chunk_index) FROM chunks WHERE file_id = ?", fileID).Scan(&maxIdx)
	if err != nil {
		return 0, err
	}
	if !maxIdx.Valid {
		return 0, nil
	}
	return int(maxIdx.Int64) + 1, nil
}

// ExistingChunkHashes returns the subset of hashes already present as Chunk
// Records for fileID, implementing Tier-2 (per-file) dedup (C8).
func (s *Store) ExistingChunkHashes(ctx context.Context, fileID string, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	args := make([]interface{}, 0, len(hashes)+1)
	args = append(args, fileID)
	for _, h := range hashes {
		args = append(args, h)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT semantic_hash FROM chunks WHERE file_id = ? AND semantic_hash IN (%s)",
			repeatPlaceholders(len(hashes))),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[h] = true
	}
	return out, rows.Err()
}

// InsertChunk inserts a Chunk Record within tx, assigning its ID. A
// (file_id, semantic_hash) collision is resolved with DO NOTHING rather than
// surfacing the UNIQUE violation and rolling back the whole file's
// transaction: the caller's Tier-2 dedup already excludes these, so a
// conflict here only fires as a backstop, and the existing row's id is
// returned instead of the discarded insert's.
func (s *Store) InsertChunk(ctx context.Context, tx *sql.Tx, c ChunkRecord) (string, error) {
	id := uuid.NewString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO chunks (id, file_id, business_id, chunk_index, text, cleaned_text, tokens,
		       source_type, metadata, confidence, semantic_hash, global_content_id,
		       reasoning_ingestion, is_duplicate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, semantic_hash) DO NOTHING`,
		id, c.FileID, c.BusinessID, c.ChunkIndex, c.Text, c.CleanedText, c.Tokens,
		nullIfEmpty(c.SourceType), c.Metadata, c.Confidence, c.SemanticHash, nullIfEmpty(c.GlobalContentID),
		c.ReasoningIngestion, boolToInt(c.IsDuplicate))
	if err != nil {
		return "", fmt.Errorf("inserting chunk record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("inserting chunk record: %w", err)
	}
	if n == 0 {
		var existingID string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM chunks WHERE file_id = ? AND semantic_hash = ?",
			c.FileID, c.SemanticHash).Scan(&existingID)
		if err != nil {
			return "", fmt.Errorf("looking up conflicting chunk record: %w", err)
		}
		return existingID, nil
	}
	return id, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
