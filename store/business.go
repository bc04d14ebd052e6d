package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// EnsureBusiness resolves a business by name, creating it if absent. The
// Relational Writer calls this with the configured default business name
// when an ingestion request supplies no business_id (C10 step 5).
func (s *Store) EnsureBusiness(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM businesses WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO businesses (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		id, name)
	if err != nil {
		return "", err
	}

	// Another writer may have raced us; re-read to get the winning row.
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM businesses WHERE name = ?", name).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}
