// Package dedup implements the Dedup Engine (C8): a two-tier check that
// short-circuits whole-file duplicates before parsing and filters
// per-file chunk duplicates after chunking.
package dedup

import (
	"context"
	"fmt"

	"github.com/brunobiangulo/ingestpipe/store"
)

// Engine runs the two dedup tiers against the relational store.
type Engine struct {
	store *store.Store
}

// NewEngine builds a Dedup Engine.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// CheckWholeFile implements Tier 1: media dedup. It looks for any
// processed File Record sharing fileHash and returns it, or nil if this
// file's content is new. The orchestrator short-circuits to the
// duplicate terminal state when a match is found.
func (e *Engine) CheckWholeFile(ctx context.Context, fileHash string) (*store.FileRecord, error) {
	rec, err := e.store.FindProcessedByHash(ctx, fileHash)
	if err != nil {
		return nil, fmt.Errorf("tier-1 dedup lookup: %w", err)
	}
	return rec, nil
}

// FilterNewChunks implements Tier 2: chunk dedup, scoped to fileID. It
// returns the indices into hashes whose hash is not already present as a
// Chunk Record for this file, preserving input order. A hash is also
// dropped the second and later time it appears within hashes itself — a
// repeated boilerplate paragraph within the same batch is "already present
// in the same file" just as much as one already committed by an earlier
// run, and the store lookup only sees committed rows, so it cannot see
// batch-internal repeats on its own. The
// Global Content Index still records cross-file recurrence separately;
// this tier only suppresses same-file duplication.
func (e *Engine) FilterNewChunks(ctx context.Context, fileID string, hashes []string) ([]int, error) {
	existing, err := e.store.ExistingChunkHashes(ctx, fileID, hashes)
	if err != nil {
		return nil, fmt.Errorf("tier-2 dedup lookup: %w", err)
	}
	seen := make(map[string]bool, len(hashes))
	var newIdx []int
	for i, h := range hashes {
		if existing[h] || seen[h] {
			continue
		}
		seen[h] = true
		newIdx = append(newIdx, i)
	}
	return newIdx, nil
}
