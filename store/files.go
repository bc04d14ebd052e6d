package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrDuplicateRace is returned by FinishFile when a concurrent File Record
// for the same file_hash reached the processed status first: the partial
// unique index idx_files_hash_processed lost the race for this id, so the
// caller should settle for the duplicate terminal status instead.
var ErrDuplicateRace = errors.New("another file with this hash was already processed")

func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// CreateFile inserts a new File Record in the uploaded status. The caller
// fills BusinessID, FileName, FileType, FilePath/SourceURL, ParserUsed and
// Metadata (which must already embed file_hash); CreateFile assigns an ID
// and mirrors the hash into the dedicated file_hash column used by
// FindProcessedByHash for Tier-1 dedup (C8).
func (s *Store) CreateFile(ctx context.Context, rec FileRecord, fileHash string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, business_id, file_name, file_type, file_path, source_url, file_hash, metadata, parser_used, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.BusinessID, rec.FileName, rec.FileType, nullIfEmpty(rec.FilePath), nullIfEmpty(rec.SourceURL),
		nullIfEmpty(fileHash), rec.Metadata, nullIfEmpty(rec.ParserUsed), FileStatusUploaded)
	if err != nil {
		return "", fmt.Errorf("creating file record: %w", err)
	}
	return id, nil
}

// FindProcessedByHash looks up a previously processed File Record sharing
// fileHash, implementing Tier-1 (whole-file) dedup. It returns
// (nil, nil) when no such record exists.
func (s *Store) FindProcessedByHash(ctx context.Context, fileHash string) (*FileRecord, error) {
	if fileHash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, file_name, file_type, COALESCE(file_path,''), COALESCE(source_url,''),
		       metadata, COALESCE(parser_used,''), status, total_chunks, unique_chunks, duplicate_chunks,
		       dedup_ratio, COALESCE(error_message,''), created_at, updated_at
		FROM files WHERE file_hash = ? AND status = ? ORDER BY created_at ASC LIMIT 1`,
		fileHash, FileStatusProcessed)
	rec, err := scanFileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetFile fetches a File Record by ID.
func (s *Store) GetFile(ctx context.Context, id string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, file_name, file_type, COALESCE(file_path,''), COALESCE(source_url,''),
		       metadata, COALESCE(parser_used,''), status, total_chunks, unique_chunks, duplicate_chunks,
		       dedup_ratio, COALESCE(error_message,''), created_at, updated_at
		FROM files WHERE id = ?`, id)
	return scanFileRow(row)
}

func scanFileRow(row *sql.Row) (*FileRecord, error) {
	var rec FileRecord
	err := row.Scan(&rec.ID, &rec.BusinessID, &rec.FileName, &rec.FileType, &rec.FilePath, &rec.SourceURL,
		&rec.Metadata, &rec.ParserUsed, &rec.Status, &rec.TotalChunks, &rec.UniqueChunks, &rec.DuplicateChunks,
		&rec.DedupRatio, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetParserUsed records which parser/method produced this file's sections,
// filled in once parsing completes (CreateFile doesn't yet know it).
func (s *Store) SetParserUsed(ctx context.Context, id, parserUsed string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET parser_used = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		nullIfEmpty(parserUsed), id)
	return err
}

// SetFileStatus transitions a File Record to a new status, optionally
// recording an error message (used for the failed status).
func (s *Store) SetFileStatus(ctx context.Context, id, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, nullIfEmpty(errMsg), id)
	return err
}

// FinishFile records the final chunk counters and dedup ratio and marks the
// File Record processed, per C11's closing step. It returns ErrDuplicateRace
// if idx_files_hash_processed rejects the update because a concurrent File
// Record with the same file_hash already holds the processed status.
func (s *Store) FinishFile(ctx context.Context, id string, total, unique, duplicate int) error {
	ratio := 0.0
	if total > 0 {
		ratio = float64(duplicate) / float64(total)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE files SET status = ?, total_chunks = ?, unique_chunks = ?, duplicate_chunks = ?,
		       dedup_ratio = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		FileStatusProcessed, total, unique, duplicate, ratio, id)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrDuplicateRace
		}
		return err
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
