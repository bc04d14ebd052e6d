package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ingestpipe "github.com/brunobiangulo/ingestpipe"
	"github.com/brunobiangulo/ingestpipe/cache"
	"github.com/brunobiangulo/ingestpipe/classify"
	"github.com/brunobiangulo/ingestpipe/dedup"
	"github.com/brunobiangulo/ingestpipe/feed"
	"github.com/brunobiangulo/ingestpipe/llm"
	"github.com/brunobiangulo/ingestpipe/orchestrator"
	"github.com/brunobiangulo/ingestpipe/parser"
	"github.com/brunobiangulo/ingestpipe/store"
	"github.com/brunobiangulo/ingestpipe/taxonomy"
	"github.com/brunobiangulo/ingestpipe/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg, err := ingestpipe.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	if cfg.Embedding.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.Provider == "openai" {
			cfg.Embedding.APIKey = v
		}
	}
	if cfg.Chat.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Chat.Provider == "openai" {
			cfg.Chat.APIKey = v
		}
	}

	st, err := store.New(cfg.DBPath, cfg.EmbeddingDim)
	if err != nil {
		slog.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	embedder, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		BaseURL:  cfg.Embedding.BaseURL,
		APIKey:   cfg.Embedding.APIKey,
	})
	if err != nil {
		slog.Error("creating embedding provider", "error", err)
		os.Exit(1)
	}

	classifierTimeout := 180 * time.Second
	classifierGateway := classify.NewGateway(cfg.Chat.BaseURL+"/api/generate", cfg.LLM.ModelName, cfg.LLM.Temperature, classifierTimeout)

	dedupEngine := dedup.NewEngine(st)
	taxonomyRegistry := taxonomy.NewRegistry(st, embedder)
	parsers := parser.NewRegistry()

	orch := orchestrator.New(st, dedupEngine, classifierGateway, taxonomyRegistry, embedder, parsers, orchestrator.Config{
		MaxChunkSize:        cfg.Chunking.MaxChunkSize,
		MinChunkSize:        cfg.Chunking.MinSentenceLength,
		DefaultBusinessName: cfg.DefaultBusinessName,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.FileWatcher.AutoStart {
		w, err := watcher.New(cfg.Paths.UploadDir, cfg.Paths.UploadDir+"/.processed_files", orch, "", slog.Default())
		if err != nil {
			slog.Error("starting file watcher", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				slog.Error("file watcher stopped", "error", err)
			}
		}()
	}

	if len(cfg.Feeds.URLs) > 0 {
		poller := feed.New(cfg.Feeds.URLs, orch, st, "", slog.Default())
		interval := time.Duration(cfg.Feeds.PollIntervalMin) * time.Minute
		go poller.Run(ctx, interval)
	}

	go taxonomyRegistry.RunPeriodicSync(ctx, cfg.TaxonomyMasterPath, 1*time.Hour, slog.Default())

	contentCache := cache.New(1 * time.Hour)

	h := newHandler(orch, st, embedder, contentCache, cfg)
	mux := http.NewServeMux()

	mux.HandleFunc("POST /ingest/manual/upload", h.handleUpload)
	mux.HandleFunc("POST /admin/ingest_text", h.handleIngestText)
	mux.HandleFunc("POST /admin/ingest_file", h.handleUpload)
	mux.HandleFunc("GET /admin/search_rag", h.handleSearchRAG)
	mux.HandleFunc("DELETE /admin/clear_rag", h.handleClearRAG)
	mux.HandleFunc("GET /admin/ingest_sources", h.handleListIngestSources)
	mux.HandleFunc("GET /admin/ingest_sources/stats", h.handleIngestSourceStats)
	mux.HandleFunc("POST /admin/ingest_sources/reset", h.handleResetIngestSource)
	mux.HandleFunc("PATCH /admin/retry/{feed_url}", h.handleRetryIngestSource)
	mux.HandleFunc("GET /admin/cache/stats", h.handleCacheStats)
	mux.HandleFunc("DELETE /admin/cache/clear", h.handleCacheClear)
	mux.HandleFunc("DELETE /admin/cache/expired", h.handleCacheClearExpired)
	mux.HandleFunc("GET /health", h.handleHealth)

	// Middleware chain: recovery -> cors -> auth -> logging -> mux
	var handler http.Handler = mux
	handler = logMiddleware(handler)
	handler = authMiddleware(cfg.APIKey, handler)
	handler = corsMiddleware(os.Getenv("INGESTPIPE_CORS_ORIGINS"), handler)
	handler = recoveryMiddleware(handler)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // ingest can run long
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
