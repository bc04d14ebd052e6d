package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/brunobiangulo/ingestpipe/orchestrator"
	"github.com/brunobiangulo/ingestpipe/store"
)

type recordingIngestor struct {
	mu   sync.Mutex
	reqs []orchestrator.Request
}

func (r *recordingIngestor) IngestFile(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	return orchestrator.Result{Status: store.FileStatusProcessed}, nil
}

func (r *recordingIngestor) calls() []orchestrator.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]orchestrator.Request, len(r.reqs))
	copy(out, r.reqs)
	return out
}

type recordingSources struct {
	mu    sync.Mutex
	polls map[string]struct {
		fetched, ingested, failed int
		status                    string
	}
}

func newRecordingSources() *recordingSources {
	return &recordingSources{polls: make(map[string]struct {
		fetched, ingested, failed int
		status                    string
	})}
}

func (s *recordingSources) EnsureIngestSource(ctx context.Context, feedURL string) (string, error) {
	return feedURL, nil
}

func (s *recordingSources) RecordPoll(ctx context.Context, id string, fetched, ingested, failed int, avgConfidence float64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls[id] = struct {
		fetched, ingested, failed int
		status                    string
	}{fetched, ingested, failed, status}
	return nil
}

func TestPollOneIngestsEachRSSItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(`<?xml version="1.0"?>
<rss><channel>
  <item><title>First</title><description>One</description><link>http://example.com/1</link></item>
  <item><title>Second</title><description>Two</description><link>http://example.com/2</link></item>
</channel></rss>`))
	}))
	defer srv.Close()

	feedURL := srv.URL + "/feed.xml"
	ing := &recordingIngestor{}
	sources := newRecordingSources()
	p := New([]string{feedURL}, ing, sources, "biz-1", nil)

	p.pollOne(context.Background(), feedURL)

	calls := ing.calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 ingest calls, got %d", len(calls))
	}
	if calls[0].BusinessID != "biz-1" || calls[0].SourceType != "rss" {
		t.Fatalf("unexpected request: %+v", calls[0])
	}

	poll := sources.polls[feedURL]
	if poll.fetched != 2 || poll.ingested != 2 || poll.failed != 0 {
		t.Fatalf("unexpected poll counters: %+v", poll)
	}
	if poll.status != store.SourceStatusActive {
		t.Fatalf("expected active status, got %q", poll.status)
	}
}

func TestPollOneRecordsFailureOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ing := &recordingIngestor{}
	sources := newRecordingSources()
	p := New([]string{srv.URL}, ing, sources, "", nil)

	p.pollOne(context.Background(), srv.URL)

	if len(ing.calls()) != 0 {
		t.Fatalf("expected no ingest calls on fetch failure")
	}
	poll := sources.polls[srv.URL]
	if poll.status != store.SourceStatusFailed || poll.failed != 1 {
		t.Fatalf("expected failed poll recorded, got %+v", poll)
	}
}

func TestParseAPIPayloadBareArray(t *testing.T) {
	data := []byte(`[{"title":"A","description":"a"},{"title":"B","description":"b"}]`)
	entries, err := parseAPIPayload(data)
	if err != nil {
		t.Fatalf("parseAPIPayload: %v", err)
	}
	if len(entries) != 2 || entries[0].Title != "A" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParseAPIPayloadEnvelope(t *testing.T) {
	data := []byte(`{"entries":[{"title":"A"}]}`)
	entries, err := parseAPIPayload(data)
	if err != nil {
		t.Fatalf("parseAPIPayload: %v", err)
	}
	if len(entries) != 1 || entries[0].Title != "A" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
