package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ResolveOrCreateCategory implements C6's resolve_or_create: a
// case-insensitive match on (group, name) returns the existing category;
// otherwise one is created with the given description.
func (s *Store) ResolveOrCreateCategory(ctx context.Context, group, name, description string) (string, error) {
	group = strings.TrimSpace(group)
	if group == "" {
		group = "content"
	}
	name = strings.TrimSpace(name)

	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM taxonomy_categories WHERE group_name = ? AND LOWER(name) = LOWER(?)",
		group, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO taxonomy_categories (id, name, group_name, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_name, name) DO NOTHING`,
		id, name, group, description)
	if err != nil {
		return "", fmt.Errorf("creating taxonomy category: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT id FROM taxonomy_categories WHERE group_name = ? AND LOWER(name) = LOWER(?)",
		group, name).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// ListCategories returns every category in a group, used by best_match and
// by the master-document sync to detect inserted/updated/skipped rows.
func (s *Store) ListCategories(ctx context.Context, group string) ([]TaxonomyCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, group_name, COALESCE(description,''), created_at, updated_at FROM taxonomy_categories WHERE group_name = ?",
		group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaxonomyCategory
	for rows.Next() {
		var c TaxonomyCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Group, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCategoryDescription updates an existing category's description,
// used by the idempotent master-document sync's "updated" branch.
func (s *Store) UpdateCategoryDescription(ctx context.Context, id, description string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE taxonomy_categories SET description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		description, id)
	return err
}
