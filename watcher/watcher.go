// Package watcher implements the File Watcher (C13): it monitors an
// upload directory non-recursively, enqueues new regular files for the
// Ingestion Orchestrator, and tracks a persistent processed-set so a
// restart does not re-ingest everything. The event loop follows
// fsnotify's standard shape (fsnotify.NewWatcher + a select loop over
// Events/Errors); the processed-set is a plain append-only file.
package watcher

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/brunobiangulo/ingestpipe/orchestrator"
	"github.com/brunobiangulo/ingestpipe/parser"
)

// settleDelay is how long the watcher waits after a create event before
// reading the file, so slow writers (large uploads, network copies) finish
// before C11 computes the whole-file hash.
const settleDelay = 2 * time.Second

// Ingestor is the subset of *orchestrator.Orchestrator the watcher needs;
// an interface so tests can swap in a recording fake.
type Ingestor interface {
	IngestFile(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Watcher monitors uploadDir for new files and feeds them to an Ingestor.
type Watcher struct {
	uploadDir     string
	processedPath string
	ingestor      Ingestor
	businessID    string
	log           *slog.Logger

	mu        sync.Mutex
	processed map[string]bool
}

// New builds a Watcher over uploadDir, persisting its processed-set to
// processedPath (e.g. data/uploads/.processed_files).
func New(uploadDir, processedPath string, ingestor Ingestor, businessID string, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	processed, err := loadProcessedSet(processedPath)
	if err != nil {
		return nil, fmt.Errorf("loading processed set: %w", err)
	}
	return &Watcher{
		uploadDir:     uploadDir,
		processedPath: processedPath,
		ingestor:      ingestor,
		businessID:    businessID,
		log:           log,
		processed:     processed,
	}, nil
}

func loadProcessedSet(path string) (map[string]bool, error) {
	out := make(map[string]bool)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out[line] = true
		}
	}
	return out, scanner.Err()
}

// markProcessed appends path to the processed-set file atomically
// (append-only; duplicate lines are harmless per the shared-resource
// policy) and records it in memory.
func (w *Watcher) markProcessed(path string) error {
	w.mu.Lock()
	w.processed[path] = true
	w.mu.Unlock()

	f, err := os.OpenFile(w.processedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(path + "\n")
	return err
}

func (w *Watcher) isProcessed(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed[path]
}

// isTemporary skips known transient filename patterns: Office lock
// files (~$...), .tmp suffixes, and any name containing a tilde.
func isTemporary(name string) bool {
	return strings.HasPrefix(name, "~$") || strings.HasSuffix(name, ".tmp") || strings.Contains(name, "~")
}

// Run starts the watch loop; it blocks until ctx is cancelled or the
// underlying fsnotify watcher errors unrecoverably.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.uploadDir); err != nil {
		return fmt.Errorf("watching upload directory: %w", err)
	}

	w.log.Info("file watcher started", "dir", w.uploadDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			go w.handleCandidate(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleCandidate(ctx context.Context, path string) {
	name := filepath.Base(path)
	if isTemporary(name) {
		return
	}
	fileType, ok := parser.RouteExtension(path)
	if !ok {
		return
	}
	if w.isProcessed(path) {
		return
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}

	result, err := w.ingestor.IngestFile(ctx, orchestrator.Request{
		FileName:   name,
		FileType:   fileType,
		FilePath:   path,
		BusinessID: w.businessID,
		SourceType: fileType,
	})
	if err != nil {
		w.log.Error("ingestion failed", "path", path, "error", err)
		return
	}
	w.log.Info("ingested file", "path", path, "status", result.Status, "total_chunks", result.TotalChunks)

	if err := w.markProcessed(path); err != nil {
		w.log.Error("recording processed path failed", "path", path, "error", err)
	}
}
