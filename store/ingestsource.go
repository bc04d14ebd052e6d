package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EnsureIngestSource resolves (or creates) the Ingest Source row for a feed
// URL, used by the Scheduled Feed Poller (C14) before each poll.
func (s *Store) EnsureIngestSource(ctx context.Context, feedURL string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, "SELECT id FROM ingest_sources WHERE feed_url = ?", feedURL).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO ingest_sources (id, feed_url) VALUES (?, ?) ON CONFLICT(feed_url) DO NOTHING",
		id, feedURL)
	if err != nil {
		return "", err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM ingest_sources WHERE feed_url = ?", feedURL).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// RecordPoll updates an Ingest Source's counters and status after a poll
// attempt completes.
func (s *Store) RecordPoll(ctx context.Context, id string, fetched, ingested, failed int, avgConfidence float64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_sources
		SET total_fetched = total_fetched + ?, total_ingested = total_ingested + ?,
		    total_failed = total_failed + ?, avg_confidence = ?, status = ?,
		    last_polled_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		fetched, ingested, failed, avgConfidence, status, id)
	return err
}

// ListIngestSources returns all Ingest Sources, for the admin
// /admin/ingest_sources surface.
func (s *Store) ListIngestSources(ctx context.Context) ([]IngestSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, feed_url, total_fetched, total_ingested, total_failed, status, avg_confidence,
		       last_polled_at, created_at, updated_at
		FROM ingest_sources ORDER BY feed_url`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IngestSource
	for rows.Next() {
		var src IngestSource
		var lastPolled sql.NullTime
		if err := rows.Scan(&src.ID, &src.FeedURL, &src.TotalFetched, &src.TotalIngested, &src.TotalFailed,
			&src.Status, &src.AvgConfidence, &lastPolled, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, err
		}
		if lastPolled.Valid {
			t := lastPolled.Time
			src.LastPolledAt = &t
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// ResetIngestSource zeroes an Ingest Source's counters back to idle, for
// the admin "/reset" route.
func (s *Store) ResetIngestSource(ctx context.Context, feedURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_sources
		SET total_fetched = 0, total_ingested = 0, total_failed = 0, avg_confidence = 0,
		    status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE feed_url = ?`, SourceStatusIdle, feedURL)
	return err
}

// MarkIngestSourceRetry flips a failed/partial source back to idle so the
// poller picks it up on its next tick, for the admin "/retry/{feed_url}" route.
func (s *Store) MarkIngestSourceRetry(ctx context.Context, feedURL string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE ingest_sources SET status = ?, updated_at = ? WHERE feed_url = ?",
		SourceStatusIdle, time.Now().UTC(), feedURL)
	return err
}
