package store

import (
	"database/sql"
	"fmt"

	"context"

	"github.com/google/uuid"
)

// UpsertGlobalContent implements C7's contract: on first insert,
// occurrence_count=1; on conflict on semantic_hash, no new row is created
// and occurrence_count is incremented atomically instead. Both branches run
// within tx so the caller can batch many hashes under one transaction. The
// returned occurrence count lets the Ingestion Orchestrator mark a Chunk
// Record is_duplicate when this content already occurred in another file.
func (s *Store) UpsertGlobalContent(ctx context.Context, tx *sql.Tx, semanticHash, cleanedText, rawText string, tokens int, businessID, sourceType, fileID string) (string, int, error) {
	id := uuid.NewString()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO global_content_index (id, semantic_hash, cleaned_text, raw_text, tokens,
		       business_id, first_seen_file_id, source_type, occurrence_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(semantic_hash) DO NOTHING`,
		id, semanticHash, cleanedText, rawText, tokens, nullIfEmpty(businessID), nullIfEmpty(fileID), nullIfEmpty(sourceType))
	if err != nil {
		return "", 0, fmt.Errorf("upserting global content index: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", 0, err
	}
	if n > 0 {
		return id, 1, nil
	}

	// Row already existed: increment occurrence_count and return its id.
	if _, err := tx.ExecContext(ctx, `
		UPDATE global_content_index
		SET occurrence_count = occurrence_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE semantic_hash = ?`, semanticHash); err != nil {
		return "", 0, fmt.Errorf("incrementing occurrence_count: %w", err)
	}
	var existingID string
	var occurrenceCount int
	if err := tx.QueryRowContext(ctx,
		"SELECT id, occurrence_count FROM global_content_index WHERE semantic_hash = ?", semanticHash).
		Scan(&existingID, &occurrenceCount); err != nil {
		return "", 0, err
	}
	return existingID, occurrenceCount, nil
}

// GlobalContentByHashes returns the Global Content Index entries for those
// of hashes that are present, keyed by semantic_hash. The orchestrator uses
// it to fetch the cleaned text it embeds, and the search_rag handler uses
// it to resolve nearest-neighbor hits back to text.
func (s *Store) GlobalContentByHashes(ctx context.Context, hashes []string) (map[string]GlobalContentEntry, error) {
	out := make(map[string]GlobalContentEntry, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, semantic_hash, cleaned_text, raw_text, tokens, COALESCE(business_id,''),
		       COALESCE(first_seen_file_id,''), COALESCE(source_type,''), occurrence_count, created_at, updated_at
		FROM global_content_index WHERE semantic_hash IN (%s)`, repeatPlaceholders(len(hashes))),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e GlobalContentEntry
		if err := rows.Scan(&e.ID, &e.SemanticHash, &e.CleanedText, &e.RawText, &e.Tokens, &e.BusinessID,
			&e.FirstSeenFileID, &e.SourceType, &e.OccurrenceCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out[e.SemanticHash] = e
	}
	return out, rows.Err()
}
