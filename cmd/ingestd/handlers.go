package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	ingestpipe "github.com/brunobiangulo/ingestpipe"
	"github.com/brunobiangulo/ingestpipe/cache"
	"github.com/brunobiangulo/ingestpipe/llm"
	"github.com/brunobiangulo/ingestpipe/orchestrator"
	"github.com/brunobiangulo/ingestpipe/parser"
	"github.com/brunobiangulo/ingestpipe/store"
)

type handler struct {
	orch     *orchestrator.Orchestrator
	store    *store.Store
	embedder llm.Provider
	cache    *cache.Cache
	cfg      ingestpipe.Config
}

func newHandler(o *orchestrator.Orchestrator, s *store.Store, embedder llm.Provider, c *cache.Cache, cfg ingestpipe.Config) *handler {
	return &handler{orch: o, store: s, embedder: embedder, cache: c, cfg: cfg}
}

// handleUpload backs both POST /ingest/manual/upload and POST
// /admin/ingest_file: both name the same multipart file contract, so a
// single handler serves both.
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(100 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart file upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	safeName := filepath.Base(header.Filename)
	fileType, ok := parser.RouteExtension(safeName)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported_format")
		return
	}

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("%d_%s", time.Now().UnixNano(), safeName))
	dst, err := os.Create(tmpPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process file")
		slog.Error("creating temp file", "error", err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeError(w, http.StatusInternalServerError, "failed to save file")
		slog.Error("saving uploaded file", "error", err)
		return
	}
	dst.Close()
	defer os.Remove(tmpPath)

	result, err := h.orch.IngestFile(ctx, orchestrator.Request{
		FileName:   safeName,
		FileType:   fileType,
		FilePath:   tmpPath,
		SourceType: fileType,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest error", "filename", safeName, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":          result.FileID,
		"status":           result.Status,
		"total_chunks":     result.TotalChunks,
		"unique_chunks":    result.UniqueChunks,
		"duplicate_chunks": result.DuplicateChunks,
	})
}

// handleIngestText backs POST /admin/ingest_text: form fields
// doc_id, text, category, source.
func (h *handler) handleIngestText(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	docID := r.FormValue("doc_id")
	text := r.FormValue("text")
	source := r.FormValue("source")
	if text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if docID == "" {
		docID = fmt.Sprintf("text_%d", time.Now().UnixNano())
	}
	if source == "" {
		source = "text"
	}

	result, err := h.orch.IngestFile(ctx, orchestrator.Request{
		FileName:   docID + ".txt",
		FileType:   "txt",
		RawText:    text,
		SourceType: source,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed")
		slog.Error("ingest_text error", "doc_id", docID, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"file_id":          result.FileID,
		"doc_id":           docID,
		"status":           result.Status,
		"total_chunks":     result.TotalChunks,
		"unique_chunks":    result.UniqueChunks,
		"duplicate_chunks": result.DuplicateChunks,
	})
}

// handleSearchRAG backs GET /admin/search_rag?query=…: embeds the query and
// returns the nearest Global Content Index entries by vector distance.
func (h *handler) handleSearchRAG(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if cached, ok := h.cache.Get(query); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		w.Write([]byte(cached))
		return
	}

	embeddings, err := h.embedder.Embed(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		writeError(w, http.StatusInternalServerError, "embedding query failed")
		slog.Error("search_rag embed error", "query", query, "error", err)
		return
	}

	k := 10
	results, err := h.store.QueryNearest(ctx, embeddings[0], k)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "vector search failed")
		slog.Error("search_rag query error", "query", query, "error", err)
		return
	}

	hashes := make([]string, len(results))
	for i, r := range results {
		hashes[i] = r.SemanticHash
	}
	entries, err := h.store.GlobalContentByHashes(ctx, hashes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolving matches failed")
		slog.Error("search_rag resolve error", "query", query, "error", err)
		return
	}

	type hit struct {
		CleanedText string  `json:"cleaned_text"`
		Distance    float64 `json:"distance"`
		SourceType  string  `json:"source_type"`
	}
	hits := make([]hit, 0, len(results))
	for _, r := range results {
		if e, ok := entries[r.SemanticHash]; ok {
			hits = append(hits, hit{CleanedText: e.CleanedText, Distance: r.Distance, SourceType: e.SourceType})
		}
	}

	payload := map[string]interface{}{"query": query, "results": hits}
	if body, err := json.Marshal(payload); err == nil {
		h.cache.Set(query, string(body))
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleClearRAG backs DELETE /admin/clear_rag.
func (h *handler) handleClearRAG(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ClearVectors(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "clearing vector store failed")
		slog.Error("clear_rag error", "error", err)
		return
	}
	h.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleListIngestSources backs GET /admin/ingest_sources.
func (h *handler) handleListIngestSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListIngestSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing ingest sources failed")
		slog.Error("list ingest sources error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

// handleIngestSourceStats backs GET /admin/ingest_sources/stats: an
// aggregate roll-up over every configured feed source.
func (h *handler) handleIngestSourceStats(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.ListIngestSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading ingest source stats failed")
		slog.Error("ingest source stats error", "error", err)
		return
	}

	var fetched, ingested, failed int
	byStatus := map[string]int{}
	for _, s := range sources {
		fetched += s.TotalFetched
		ingested += s.TotalIngested
		failed += s.TotalFailed
		byStatus[s.Status]++
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source_count":   len(sources),
		"total_fetched":  fetched,
		"total_ingested": ingested,
		"total_failed":   failed,
		"by_status":      byStatus,
	})
}

// handleResetIngestSource backs POST /admin/ingest_sources/reset?feed_url=…
func (h *handler) handleResetIngestSource(w http.ResponseWriter, r *http.Request) {
	feedURL := r.URL.Query().Get("feed_url")
	if feedURL == "" {
		writeError(w, http.StatusBadRequest, "feed_url is required")
		return
	}
	if err := h.store.ResetIngestSource(r.Context(), feedURL); err != nil {
		writeError(w, http.StatusInternalServerError, "resetting ingest source failed")
		slog.Error("reset ingest source error", "feed_url", feedURL, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"feed_url": feedURL, "status": "reset"})
}

// handleRetryIngestSource backs PATCH /admin/retry/{feed_url}.
func (h *handler) handleRetryIngestSource(w http.ResponseWriter, r *http.Request) {
	feedURL := r.PathValue("feed_url")
	if feedURL == "" {
		writeError(w, http.StatusBadRequest, "feed_url is required")
		return
	}
	if err := h.store.MarkIngestSourceRetry(r.Context(), feedURL); err != nil {
		writeError(w, http.StatusInternalServerError, "retrying ingest source failed")
		slog.Error("retry ingest source error", "feed_url", feedURL, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"feed_url": feedURL, "status": "retrying"})
}

// handleCacheStats backs GET /admin/cache/stats.
func (h *handler) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.cache.Stats()
	writeJSON(w, http.StatusOK, map[string]int{"total": st.Total, "expired": st.Expired})
}

// handleCacheClear backs DELETE /admin/cache/clear.
func (h *handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleCacheClearExpired backs DELETE /admin/cache/expired.
func (h *handler) handleCacheClearExpired(w http.ResponseWriter, r *http.Request) {
	removed := h.cache.ClearExpired()
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleHealth backs GET /health.
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
