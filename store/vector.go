package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
)

// serializeFloat32 converts a float32 slice to little-endian bytes, the
// wire format sqlite-vec's vec0 module expects for a float[N] column.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// ExistingVectorHashes returns the subset of hashes already present in the
// vector store, step 1 of the Vector Store Adapter's contract (C9).
func (s *Store) ExistingVectorHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT semantic_hash FROM vector_points WHERE semantic_hash IN (%s)", repeatPlaceholders(len(hashes))),
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

// VectorPoint is one embedding to upsert, keyed by semantic_hash per C9.
type VectorPoint struct {
	SemanticHash string
	Embedding    []float32
	FileID       string
	BusinessID   string
	SourceType   string
}

// UpsertVectors inserts the vector_points mapping row (if absent) and its
// paired vec_points embedding row for each point. A point whose hash is
// already mapped is skipped, satisfying "never produce duplicate vectors
// for the same hash" (C9 rule 4).
func (s *Store) UpsertVectors(ctx context.Context, points []VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range points {
			var rowID int64
			err := tx.QueryRowContext(ctx,
				"SELECT rowid FROM vector_points WHERE semantic_hash = ?", p.SemanticHash).Scan(&rowID)
			switch {
			case err == sql.ErrNoRows:
				res, insErr := tx.ExecContext(ctx, `
					INSERT INTO vector_points (semantic_hash, file_id, business_id, source_type)
					VALUES (?, ?, ?, ?)`,
					p.SemanticHash, nullIfEmpty(p.FileID), nullIfEmpty(p.BusinessID), nullIfEmpty(p.SourceType))
				if insErr != nil {
					return fmt.Errorf("inserting vector_points row: %w", insErr)
				}
				rowID, insErr = res.LastInsertId()
				if insErr != nil {
					return insErr
				}
			case err != nil:
				return err
			default:
				// Already mapped; re-embedding would duplicate the vector, so skip.
				continue
			}

			raw := serializeFloat32(p.Embedding)
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_points (point_id, embedding) VALUES (?, ?)", rowID, raw); err != nil {
				return fmt.Errorf("inserting vec_points row: %w", err)
			}
		}
		return nil
	})
}

// ClearVectors deletes every vector point, for the admin DELETE
// /admin/clear_rag route. The Global Content Index and relational chunks
// are untouched; a subsequent ingest or reconciliation pass re-embeds by
// walking hashes absent from the vector store, per the vector-store-error
// recovery policy.
func (s *Store) ClearVectors(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_points"); err != nil {
			return fmt.Errorf("clearing vec_points: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vector_points"); err != nil {
			return fmt.Errorf("clearing vector_points: %w", err)
		}
		return nil
	})
}

// KNNResult is one nearest-neighbor hit, returned by QueryNearest for the
// admin search_rag route; included here because the vec0 query itself
// belongs to the storage layer.
type KNNResult struct {
	SemanticHash string
	Distance     float64
}

// QueryNearest runs a KNN search over vec_points and resolves point_id back
// to semantic_hash via vector_points.
func (s *Store) QueryNearest(ctx context.Context, embedding []float32, k int) ([]KNNResult, error) {
	raw := serializeFloat32(embedding)
	rows, err := s.db.QueryContext(ctx, `
		SELECT vp.semantic_hash, v.distance
		FROM vec_points v
		JOIN vector_points vp ON vp.rowid = v.point_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`, raw, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []KNNResult
	for rows.Next() {
		var r KNNResult
		if err := rows.Scan(&r.SemanticHash, &r.Distance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
