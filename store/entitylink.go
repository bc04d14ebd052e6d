package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// InsertEntityLink inserts one Entity Link per Chunk Record within tx
// (C10 step 6). fingerprint equals the chunk's semantic_hash; a conflict on
// fingerprint means this exact content is already linked and the insert is
// skipped rather than erroring.
func (s *Store) InsertEntityLink(ctx context.Context, tx *sql.Tx, link EntityLink) (string, error) {
	id := uuid.NewString()
	if link.ID != "" {
		id = link.ID
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO entity_links (id, entity_type, entity_id, category_id, subcategory_id, business_id, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO NOTHING`,
		id, link.EntityType, link.EntityID, nullIfEmpty(link.CategoryID), nullIfEmpty(link.SubcategoryID),
		nullIfEmpty(link.BusinessID), link.Fingerprint)
	if err != nil {
		return "", fmt.Errorf("inserting entity link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", err
	}
	if n > 0 {
		return id, nil
	}

	var existingID string
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM entity_links WHERE fingerprint = ?", link.Fingerprint).Scan(&existingID); err != nil {
		return "", err
	}
	return existingID, nil
}

// GetEntityLinkByFingerprint looks up an Entity Link by its fingerprint.
func (s *Store) GetEntityLinkByFingerprint(ctx context.Context, fingerprint string) (*EntityLink, error) {
	var l EntityLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_id, COALESCE(category_id,''), COALESCE(subcategory_id,''),
		       COALESCE(business_id,''), fingerprint, created_at
		FROM entity_links WHERE fingerprint = ?`, fingerprint).
		Scan(&l.ID, &l.EntityType, &l.EntityID, &l.CategoryID, &l.SubcategoryID, &l.BusinessID, &l.Fingerprint, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
