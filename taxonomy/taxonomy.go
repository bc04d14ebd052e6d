// Package taxonomy implements the Taxonomy Registry (C6): resolving or
// creating controlled-vocabulary categories, syncing a master JSON document
// into the registry, and finding the best-matching category for a piece of
// text by blending literal and embedding similarity.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/brunobiangulo/ingestpipe/llm"
	"github.com/brunobiangulo/ingestpipe/store"
)

const (
	defaultGroup          = "content"
	autoGeneratedDesc      = "Auto-generated"
	confidenceFloor        = 0.99
	literalWeight          = 0.6
	embeddingWeight        = 0.4
)

// Registry is the Taxonomy Registry (C6), layered over the relational
// store and an embedding provider for best_match's cosine-similarity half.
type Registry struct {
	store    *store.Store
	embedder llm.Provider
}

// NewRegistry builds a Taxonomy Registry.
func NewRegistry(s *store.Store, embedder llm.Provider) *Registry {
	return &Registry{store: s, embedder: embedder}
}

// ResolveOrCreate guarantees a category exists for (group, name) and
// returns its ID, per C6's resolve_or_create contract.
func (r *Registry) ResolveOrCreate(ctx context.Context, group, name string) (string, error) {
	if group == "" {
		group = defaultGroup
	}
	return r.store.ResolveOrCreateCategory(ctx, group, name, autoGeneratedDesc)
}

// Match is the result of best_match: the chosen category, subcategory, and
// the confidence that led to that choice.
type Match struct {
	Category    string
	Subcategory string
	Confidence  float64
}

// uncategorizedMatch is returned whenever confidence falls below the floor.
func uncategorizedMatch() Match {
	return Match{Category: uncategorizedCategory, Subcategory: generalBusinessSub, Confidence: 0}
}

const (
	uncategorizedCategory = "Uncategorized"
	generalBusinessSub    = "General Business"
)

// BestMatch implements C6's best_match(text) -> {category, subcategory,
// confidence}, blending literal substring similarity (0.6) with cosine
// similarity over category-name embeddings (0.4). A result below the 0.99
// confidence floor collapses to (Uncategorized, General Business) to avoid
// silent misclassification.
func (r *Registry) BestMatch(ctx context.Context, text string) (Match, error) {
	cats, err := r.store.ListCategories(ctx, defaultGroup)
	if err != nil {
		return Match{}, fmt.Errorf("listing categories: %w", err)
	}
	if len(cats) == 0 {
		return uncategorizedMatch(), nil
	}

	textLower := strings.ToLower(text)

	var textEmbedding []float32
	var names []string
	for _, c := range cats {
		names = append(names, c.Name)
	}
	embeddings, embErr := r.embedder.Embed(ctx, append([]string{text}, names...))
	haveEmbeddings := embErr == nil && len(embeddings) == len(names)+1
	if haveEmbeddings {
		textEmbedding = embeddings[0]
	}

	best := Match{}
	bestIdx := -1
	for i, c := range cats {
		literal := literalSimilarity(textLower, strings.ToLower(c.Name))
		score := literal * literalWeight
		if haveEmbeddings {
			score += cosineSimilarity(textEmbedding, embeddings[i+1]) * embeddingWeight
		}
		if score > best.Confidence {
			best = Match{Category: c.Name, Subcategory: c.Group, Confidence: score}
			bestIdx = i
		}
	}
	if bestIdx < 0 || best.Confidence < confidenceFloor {
		return uncategorizedMatch(), nil
	}
	return best, nil
}

// literalSimilarity returns a substring-overlap score in [0,1]: 1 when
// either string contains the other, otherwise the fraction of the shorter
// string's length that overlaps as a contiguous run with the longer one.
func literalSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	best := 0
	for i := 0; i < len(shorter); i++ {
		for j := i + 1; j <= len(shorter); j++ {
			if strings.Contains(longer, shorter[i:j]) && j-i > best {
				best = j - i
			}
		}
	}
	return float64(best) / float64(len(shorter))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// MasterDocument mirrors the taxonomy master document's JSON shape:
// version/last_updated/description plus per-domain sections mapping
// section name to {values, synonyms}.
type MasterDocument struct {
	Version     string                   `json:"version"`
	LastUpdated string                   `json:"last_updated"`
	Description string                   `json:"description"`
	Sections    map[string]MasterSection `json:"-"`
}

// MasterSection is one section of the master document.
type MasterSection struct {
	Values   []string            `json:"values"`
	Synonyms map[string][]string `json:"synonyms"`
}

// SyncResult reports the idempotent sync's counters.
type SyncResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// SyncMasterDocument loads the taxonomy master document from path and
// imports it into the registry, recording inserted/updated/skipped
// counters. Re-running with the same document is a no-op save for
// timestamps, satisfying the idempotence requirement.
func (r *Registry) SyncMasterDocument(ctx context.Context, path string) (SyncResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SyncResult{}, fmt.Errorf("reading taxonomy master document: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return SyncResult{}, fmt.Errorf("parsing taxonomy master document: %w", err)
	}

	var result SyncResult
	for key, section := range envelope {
		switch key {
		case "version", "last_updated", "description":
			continue
		}
		var sec MasterSection
		if err := json.Unmarshal(section, &sec); err != nil {
			continue
		}
		existing, err := r.store.ListCategories(ctx, key)
		if err != nil {
			return result, fmt.Errorf("listing categories for section %q: %w", key, err)
		}
		existingByName := make(map[string]store.TaxonomyCategory, len(existing))
		for _, c := range existing {
			existingByName[strings.ToLower(c.Name)] = c
		}

		for _, value := range sec.Values {
			wantDesc := descriptionFor(key, value, sec)
			cat, already := existingByName[strings.ToLower(value)]
			if already {
				if cat.Description == wantDesc {
					result.Skipped++
					continue
				}
				if err := r.store.UpdateCategoryDescription(ctx, cat.ID, wantDesc); err != nil {
					return result, err
				}
				result.Updated++
				continue
			}
			if _, err := r.store.ResolveOrCreateCategory(ctx, key, value, wantDesc); err != nil {
				return result, err
			}
			result.Inserted++
		}
	}
	return result, nil
}

// RunPeriodicSync syncs the master document at path on startup and again
// every interval, mirroring the Scheduled Feed Poller's own run-then-tick
// loop (feed.Poller.Run). A missing or unreadable document is logged and
// skipped rather than treated as fatal: the registry still works off
// auto-created categories without it.
func (r *Registry) RunPeriodicSync(ctx context.Context, path string, interval time.Duration, log *slog.Logger) {
	if path == "" {
		return
	}
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sync := func() {
		result, err := r.SyncMasterDocument(ctx, path)
		if err != nil {
			log.Warn("taxonomy master document sync failed", "path", path, "error", err)
			return
		}
		log.Info("taxonomy master document synced", "path", path,
			"inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped)
	}

	sync()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync()
		}
	}
}

func descriptionFor(section, value string, sec MasterSection) string {
	if syns, ok := sec.Synonyms[value]; ok && len(syns) > 0 {
		return fmt.Sprintf("%s: %s (synonyms: %s)", section, value, strings.Join(syns, ", "))
	}
	return fmt.Sprintf("%s: %s", section, value)
}
