// Package orchestrator implements the per-file ingestion state machine:
// parse -> chunk -> dedup -> classify -> persist -> embed. The phase shape
// (parse, dedup-check, chunk, extract-with-bounded-concurrency, store,
// final-status) follows the worker-pool pattern a production pipeline
// would use for one-file-at-a-time processing under bounded concurrency.
package orchestrator

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brunobiangulo/ingestpipe/chunker"
	"github.com/brunobiangulo/ingestpipe/classify"
	"github.com/brunobiangulo/ingestpipe/content"
	"github.com/brunobiangulo/ingestpipe/dedup"
	"github.com/brunobiangulo/ingestpipe/llm"
	"github.com/brunobiangulo/ingestpipe/parser"
	"github.com/brunobiangulo/ingestpipe/reasonblock"
	"github.com/brunobiangulo/ingestpipe/store"
	"github.com/brunobiangulo/ingestpipe/taxonomy"
)

const (
	embedBatchSize    = 256
	extractConcurrency = 4
)

// Config bundles the tunables the orchestrator reads out of the top-level
// configuration file's chunking.* keys and its default_business_name key.
type Config struct {
	MaxChunkSize        int
	MinChunkSize        int
	DefaultBusinessName string
}

// Orchestrator drives C11's state machine for one file at a time; callers
// run many Orchestrators concurrently across a worker pool.
type Orchestrator struct {
	store      *store.Store
	dedup      *dedup.Engine
	classifier *classify.Gateway
	taxonomy   *taxonomy.Registry
	embedder   llm.Provider
	parsers    *parser.Registry
	cfg        Config
	log        *slog.Logger
}

// New builds an Orchestrator. embedder may be nil in tests that only
// exercise the relational path; classifier must never be nil (it always
// fails soft on its own).
func New(s *store.Store, d *dedup.Engine, cls *classify.Gateway, tax *taxonomy.Registry, embedder llm.Provider, parsers *parser.Registry, cfg Config, log *slog.Logger) *Orchestrator {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = chunker.DefaultMinChunkSize
	}
	if cfg.DefaultBusinessName == "" {
		cfg.DefaultBusinessName = "default"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: s, dedup: d, classifier: cls, taxonomy: tax, embedder: embedder, parsers: parsers, cfg: cfg, log: log}
}

// Request describes one ingestion attempt, whichever producer raised it
// (file watcher, HTTP upload, or the scheduled feed poller).
type Request struct {
	FileName   string
	FileType   string // pdf|docx|txt|csv|xlsx|json|rss|api
	FilePath   string // set for on-disk sources
	SourceURL  string // set for feed/API sources
	RawText    string // set for synthetic/text-only sources (rss entries, /admin/ingest_text)
	BusinessID string // resolved business id; empty lets the orchestrator resolve the default
	SourceType string // carried onto chunks/reasoning blocks; defaults to FileType
}

// Result reports the outcome of IngestFile for callers (HTTP handlers,
// the watcher, the poller) that need a summary without re-reading the
// File Record.
type Result struct {
	FileID          string
	Status          string
	TotalChunks     int
	UniqueChunks    int
	DuplicateChunks int
	AvgConfidence   float64
}

// IngestFile runs the full C11 state machine for one request: acquire,
// tier-1 dedup, parse, per-chunk pipeline, tier-2 dedup, persist, embed,
// terminal status. It never panics the caller on an internal pipeline
// error. Parse, tier-2 dedup, chunk-index and persist failures land the
// File Record in "failed" and are reported through Result.Status with a
// nil error. Failures before the File Record exists, a failed tier-1
// lookup (which also marks the record "failed"), and failed status writes
// are returned as errors.
func (o *Orchestrator) IngestFile(ctx context.Context, req Request) (Result, error) {
	businessID, err := o.resolveBusiness(ctx, req.BusinessID)
	if err != nil {
		return Result{}, fmt.Errorf("resolving business: %w", err)
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = req.FileType
	}

	fileHash, rawText, err := o.materialize(req)
	if err != nil {
		return Result{}, fmt.Errorf("materializing source: %w", err)
	}

	metadata, _ := json.Marshal(map[string]string{"file_hash": fileHash})
	fileID, err := o.store.CreateFile(ctx, store.FileRecord{
		BusinessID: businessID,
		FileName:   req.FileName,
		FileType:   req.FileType,
		FilePath:   req.FilePath,
		SourceURL:  req.SourceURL,
		Metadata:   string(metadata),
	}, fileHash)
	if err != nil {
		return Result{}, fmt.Errorf("creating file record: %w", err)
	}

	if err := o.store.SetFileStatus(ctx, fileID, store.FileStatusProcessing, ""); err != nil {
		return Result{}, fmt.Errorf("acquiring file: %w", err)
	}

	// Tier 1: whole-file dedup. Persisted early (file_hash lives on the
	// row created above) so a concurrent watcher/HTTP race converges on
	// whichever writer's processed row becomes visible first.
	if existing, err := o.dedup.CheckWholeFile(ctx, fileHash); err != nil {
		o.fail(ctx, fileID, "tier-1 dedup check failed")
		return Result{}, fmt.Errorf("tier-1 dedup: %w", err)
	} else if existing != nil && existing.ID != fileID {
		if err := o.store.SetFileStatus(ctx, fileID, store.FileStatusDuplicate, ""); err != nil {
			return Result{}, fmt.Errorf("marking duplicate: %w", err)
		}
		return Result{FileID: fileID, Status: store.FileStatusDuplicate}, nil
	}

	sections, parserUsed, err := o.parse(ctx, req)
	if err != nil {
		o.fail(ctx, fileID, err.Error())
		return Result{FileID: fileID, Status: store.FileStatusFailed}, nil
	}
	if parserUsed != "" {
		_ = o.store.SetParserUsed(ctx, fileID, parserUsed)
	}

	var rawChunks []string
	if rawText != "" && len(sections) == 0 {
		rawChunks = chunker.Chunk(rawText, o.cfg.MaxChunkSize, o.cfg.MinChunkSize)
	}
	for _, sec := range sections {
		rawChunks = append(rawChunks, chunker.Chunk(sec.Content, o.cfg.MaxChunkSize, o.cfg.MinChunkSize)...)
	}

	if len(rawChunks) == 0 {
		return o.finishOrDuplicate(ctx, fileID, 0, 0, 0)
	}

	prepared := o.prepareChunks(ctx, rawChunks, sourceType)

	// Tier 2: per-file chunk dedup, scoped to this file.
	hashes := make([]string, len(prepared))
	for i, c := range prepared {
		hashes[i] = c.semanticHash
	}
	newIdx, err := o.dedup.FilterNewChunks(ctx, fileID, hashes)
	if err != nil {
		o.fail(ctx, fileID, "tier-2 dedup check failed")
		return Result{FileID: fileID, Status: store.FileStatusFailed}, nil
	}
	kept := make([]preparedChunk, 0, len(newIdx))
	for _, i := range newIdx {
		kept = append(kept, prepared[i])
	}

	if len(kept) == 0 {
		return o.finishOrDuplicate(ctx, fileID, len(prepared), 0, len(prepared))
	}

	startIndex, err := o.store.NextChunkIndex(ctx, fileID)
	if err != nil {
		o.fail(ctx, fileID, "computing chunk index failed")
		return Result{FileID: fileID, Status: store.FileStatusFailed}, nil
	}

	duplicate, vectorPoints, err := o.persist(ctx, fileID, businessID, sourceType, startIndex, kept)
	if err != nil {
		o.fail(ctx, fileID, "persisting chunks failed")
		return Result{FileID: fileID, Status: store.FileStatusFailed}, nil
	}

	if o.embedder != nil && len(vectorPoints) > 0 {
		if err := o.embedAndUpsert(ctx, vectorPoints); err != nil {
			o.log.Warn("vector upsert failed, relational state remains authoritative", "file_id", fileID, "error", err)
		}
	}

	unique := len(kept)
	total := len(prepared)
	if err := o.store.FinishFile(ctx, fileID, total, unique, duplicate); err != nil {
		return o.resultForFinishErr(ctx, fileID, err)
	}

	var confidenceSum float64
	for _, c := range kept {
		confidenceSum += c.confidence
	}
	avgConfidence := confidenceSum / float64(len(kept))

	return Result{FileID: fileID, Status: store.FileStatusProcessed, TotalChunks: total, UniqueChunks: unique, DuplicateChunks: duplicate, AvgConfidence: avgConfidence}, nil
}

// finishOrDuplicate calls FinishFile for a terminal chunk-count tuple and
// turns a lost exactly-once race into the duplicate status instead of a
// pipeline failure.
func (o *Orchestrator) finishOrDuplicate(ctx context.Context, fileID string, total, unique, duplicate int) (Result, error) {
	if err := o.store.FinishFile(ctx, fileID, total, unique, duplicate); err != nil {
		return o.resultForFinishErr(ctx, fileID, err)
	}
	return Result{FileID: fileID, Status: store.FileStatusProcessed, TotalChunks: total, UniqueChunks: unique, DuplicateChunks: duplicate}, nil
}

// resultForFinishErr turns FinishFile's ErrDuplicateRace into the duplicate
// terminal status (another File Record with the same file_hash reached
// processed first) and anything else into a plain error.
func (o *Orchestrator) resultForFinishErr(ctx context.Context, fileID string, err error) (Result, error) {
	if errors.Is(err, store.ErrDuplicateRace) {
		if serr := o.store.SetFileStatus(ctx, fileID, store.FileStatusDuplicate, ""); serr != nil {
			return Result{}, fmt.Errorf("marking duplicate after race: %w", serr)
		}
		return Result{FileID: fileID, Status: store.FileStatusDuplicate}, nil
	}
	return Result{}, fmt.Errorf("finishing file: %w", err)
}

func (o *Orchestrator) fail(ctx context.Context, fileID, msg string) {
	if len(msg) > 255 {
		msg = msg[:255]
	}
	if err := o.store.SetFileStatus(ctx, fileID, store.FileStatusFailed, msg); err != nil {
		o.log.Error("failed to record failed status", "file_id", fileID, "error", err)
	}
}

func (o *Orchestrator) resolveBusiness(ctx context.Context, businessID string) (string, error) {
	if businessID != "" {
		return businessID, nil
	}
	return o.store.EnsureBusiness(ctx, o.cfg.DefaultBusinessName)
}

// materialize computes the whole-file hash and, for text-only sources,
// returns the raw text directly rather than re-reading a path.
func (o *Orchestrator) materialize(req Request) (fileHash string, rawText string, err error) {
	switch {
	case req.RawText != "":
		h, err := content.FileHashReader(bytes.NewBufferString(req.RawText))
		if err != nil {
			return "", "", err
		}
		return h, req.RawText, nil
	case req.FilePath != "":
		h, err := content.FileHash(req.FilePath)
		if err != nil {
			return "", "", err
		}
		return h, "", nil
	default:
		return "", "", fmt.Errorf("request has neither a file path nor raw text")
	}
}

func (o *Orchestrator) parse(ctx context.Context, req Request) ([]parser.Section, string, error) {
	if req.FilePath == "" {
		return nil, "", nil
	}
	p, err := o.parsers.Get(req.FileType)
	if err != nil {
		return nil, "", fmt.Errorf("unsupported_format")
	}
	result, err := p.Parse(ctx, req.FilePath)
	if err != nil {
		return nil, "", fmt.Errorf("parse failed: %w", err)
	}
	return result.Sections, result.Method, nil
}

// preparedChunk holds everything computed for one chunk before the
// relational write, so the per-chunk pipeline (pure + classifier calls)
// can run ahead of the single per-file transaction.
type preparedChunk struct {
	text         string
	cleanedText  string
	tokens       int
	semanticHash string
	confidence   float64
	classifyRec  classify.Record
	reasoning    reasonblock.Block
}

// prepareChunks runs the per-chunk pipeline (visual-detect, optional
// re-explain, hash, reasoning block, classify) for every raw chunk,
// bounding classifier concurrency the way docgest's Worker.Process bounds
// extraction concurrency.
func (o *Orchestrator) prepareChunks(ctx context.Context, rawChunks []string, sourceType string) []preparedChunk {
	out := make([]preparedChunk, len(rawChunks))
	sem := make(chan struct{}, extractConcurrency)
	var wg sync.WaitGroup

	for i, raw := range rawChunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, raw string) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = o.prepareOne(ctx, raw, sourceType)
		}(i, raw)
	}
	wg.Wait()
	return out
}

func (o *Orchestrator) prepareOne(ctx context.Context, raw string, sourceType string) preparedChunk {
	cleaned := content.Normalize(raw)
	originalHash := content.SemanticHash(cleaned)

	block := reasonblock.Build(cleaned, sourceType, time.Now())

	if chunker.IsVisual(cleaned) {
		if explained, ok := o.classifier.Explain(ctx, cleaned); ok && explained != "" {
			cleaned = content.Normalize(explained)
			block = block.WithVisualOrigin(originalHash)
		}
	}

	semanticHash := content.SemanticHash(cleaned)
	block = block.WithLineage(semanticHash)

	rec := o.classifier.Classify(ctx, cleaned)

	// C6 sits downstream of the Classifier Gateway: when the LLM classifier
	// exhausted its retries and fell back to Uncategorized, best_match gets
	// one more attempt at a confident category against the controlled
	// vocabulary already in the registry before the chunk is persisted as
	// uncategorized.
	if rec.CategoryLevel1 == "" || rec.CategoryLevel1 == "Uncategorized" {
		if match, err := o.taxonomy.BestMatch(ctx, cleaned); err == nil && match.Category != "" && match.Category != "Uncategorized" {
			rec.CategoryLevel1 = match.Category
			rec.CategoryLevel2Sub = match.Subcategory
		}
	}

	return preparedChunk{
		text:         raw,
		cleanedText:  cleaned,
		tokens:       chunker.CountTokens(cleaned),
		semanticHash: semanticHash,
		confidence:   rec.ExtractionConfidence,
		classifyRec:  rec,
		reasoning:    block,
	}
}

// persist runs C10's Relational Writer: ensure taxonomy categories, then,
// in one transaction per file, upsert the Global Content Index, insert
// chunk rows, and link one Entity Link per chunk. It returns the count
// of chunks that the Global Content Index reports as cross-file
// duplicates (occurrence_count > 1 at insertion time) and one vector
// point candidate per kept chunk.
func (o *Orchestrator) persist(ctx context.Context, fileID, businessID, sourceType string, startIndex int, kept []preparedChunk) (int, []store.VectorPoint, error) {
	// Taxonomy categories are resolved ahead of the per-file transaction:
	// ResolveOrCreate has its own conflict-safe upsert-then-reselect idiom
	// (store/taxonomy.go) and is idempotent, so it does not need to share
	// the chunk-insert transaction's atomicity.
	categoryIDs := make(map[string]string, len(kept))
	for _, c := range kept {
		for _, name := range [2]string{c.classifyRec.CategoryLevel1, c.classifyRec.CategoryLevel2Sub} {
			if name == "" {
				continue
			}
			if _, ok := categoryIDs[name]; ok {
				continue
			}
			id, err := o.taxonomy.ResolveOrCreate(ctx, "content", name)
			if err != nil {
				return 0, nil, fmt.Errorf("resolving taxonomy category %q: %w", name, err)
			}
			categoryIDs[name] = id
		}
	}

	var duplicate int
	var vectorPoints []store.VectorPoint

	err := o.store.WithTx(ctx, func(tx *sql.Tx) error {
		for i, c := range kept {
			reasoningJSON, err := c.reasoning.JSON()
			if err != nil {
				return fmt.Errorf("encoding reasoning block: %w", err)
			}
			metaJSON, err := json.Marshal(c.classifyRec)
			if err != nil {
				return fmt.Errorf("encoding classify record: %w", err)
			}

			globalID, occurrence, err := o.store.UpsertGlobalContent(ctx, tx, c.semanticHash, c.cleanedText, c.text, c.tokens, businessID, sourceType, fileID)
			if err != nil {
				return err
			}
			isDup := occurrence > 1
			if isDup {
				duplicate++
			}
			// Every kept chunk is a vector candidate, duplicate or not:
			// embedAndUpsert checks the vector store itself (C9 steps 1-2)
			// so a hash that already occurred in another file but whose
			// vector never landed (a prior vector-store error) still gets
			// embedded here instead of silently staying unindexed.
			vectorPoints = append(vectorPoints, store.VectorPoint{
				SemanticHash: c.semanticHash,
				FileID:       fileID,
				BusinessID:   businessID,
				SourceType:   sourceType,
			})

			categoryID := categoryIDs[c.classifyRec.CategoryLevel1]
			subcategoryID := categoryIDs[c.classifyRec.CategoryLevel2Sub]

			chunkID, err := o.store.InsertChunk(ctx, tx, store.ChunkRecord{
				FileID:              fileID,
				BusinessID:          businessID,
				ChunkIndex:          startIndex + i,
				Text:                c.text,
				CleanedText:         c.cleanedText,
				Tokens:              c.tokens,
				SourceType:          sourceType,
				Metadata:            string(metaJSON),
				Confidence:          c.confidence,
				SemanticHash:        c.semanticHash,
				GlobalContentID:     globalID,
				ReasoningIngestion:  reasoningJSON,
				IsDuplicate:         isDup,
			})
			if err != nil {
				return err
			}

			if _, err := o.store.InsertEntityLink(ctx, tx, store.EntityLink{
				EntityType:    "chunk",
				EntityID:      chunkID,
				CategoryID:    categoryID,
				SubcategoryID: subcategoryID,
				BusinessID:    businessID,
				Fingerprint:   c.semanticHash,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return duplicate, vectorPoints, nil
}

// embedAndUpsert implements C9's full contract: step 1 asks the vector
// store which hashes are already present, steps 2-3 embed (batch size 256)
// and upsert whichever hashes are missing — whether they are genuinely new
// to the Global Content Index or already there but never reached the
// vector store — and step 4 (never duplicate a vector for the same hash)
// falls out of UpsertVectors' own existence check.
func (o *Orchestrator) embedAndUpsert(ctx context.Context, candidates []store.VectorPoint) error {
	hashes := make([]string, len(candidates))
	for i, p := range candidates {
		hashes[i] = p.SemanticHash
	}
	present, err := o.store.ExistingVectorHashes(ctx, hashes)
	if err != nil {
		return fmt.Errorf("checking existing vectors: %w", err)
	}
	var points []store.VectorPoint
	for _, p := range candidates {
		if !present[p.SemanticHash] {
			points = append(points, p)
		}
	}

	for start := 0; start < len(points); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]

		embeddings, err := o.embedBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("embedding batch: %w", err)
		}
		for i := range batch {
			batch[i].Embedding = embeddings[i]
		}
		if err := o.store.UpsertVectors(ctx, batch); err != nil {
			return fmt.Errorf("upserting vectors: %w", err)
		}
	}
	return nil
}

// embedBatch resolves cleaned text for each point's semantic_hash from the
// Global Content Index (the only durable copy of cleaned_text once the
// per-file transaction has committed) and embeds it.
func (o *Orchestrator) embedBatch(ctx context.Context, batch []store.VectorPoint) ([][]float32, error) {
	hashes := make([]string, len(batch))
	for i, p := range batch {
		hashes[i] = p.SemanticHash
	}
	entries, err := o.store.GlobalContentByHashes(ctx, hashes)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(batch))
	for i, h := range hashes {
		if e, ok := entries[h]; ok {
			texts[i] = e.CleanedText
		}
	}
	return o.embedder.Embed(ctx, texts)
}
