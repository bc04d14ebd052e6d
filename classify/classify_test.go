package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T, responses []string) *httptest.Server {
	t.Helper()
	i := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Stream {
			t.Fatalf("expected stream=false")
		}
		resp := ""
		if i < len(responses) {
			resp = responses[i]
		}
		i++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(generateResponse{Response: resp})
	}))
}

func TestClassifyStrictJSON(t *testing.T) {
	srv := newTestServer(t, []string{`{"entity_type":"document","category_level_1":"Finance","category_level_2_sub":"Budget","extraction_confidence":0.9}`})
	defer srv.Close()

	g := NewGateway(srv.URL, "test-model", 0.2, time.Second)
	rec := g.Classify(context.Background(), "quarterly revenue grew 12%")
	if rec.CategoryLevel1 != "Finance" {
		t.Fatalf("expected Finance, got %q", rec.CategoryLevel1)
	}
}

func TestClassifyRepairsWrappedJSON(t *testing.T) {
	srv := newTestServer(t, []string{`here is the result: {"category_level_1":"Ops","entity_type":"doc"} thanks`})
	defer srv.Close()

	g := NewGateway(srv.URL, "test-model", 0.2, time.Second)
	rec := g.Classify(context.Background(), "some operational text")
	if rec.CategoryLevel1 != "Ops" {
		t.Fatalf("expected Ops, got %q", rec.CategoryLevel1)
	}
}

func TestClassifyRetriesOnUncategorized(t *testing.T) {
	srv := newTestServer(t, []string{
		`{"category_level_1":"Uncategorized"}`,
		`{"category_level_1":""}`,
		`{"category_level_1":"Legal","entity_type":"doc"}`,
	})
	defer srv.Close()

	g := NewGateway(srv.URL, "test-model", 0.2, time.Second)
	rec := g.Classify(context.Background(), "contract terms and conditions")
	if rec.CategoryLevel1 != "Legal" {
		t.Fatalf("expected Legal after retries, got %q", rec.CategoryLevel1)
	}
}

func TestClassifyFallsBackOnExhaustion(t *testing.T) {
	srv := newTestServer(t, []string{"", "", ""})
	defer srv.Close()

	text := strings.Repeat("x", 300)
	g := NewGateway(srv.URL, "test-model", 0.2, time.Second)
	rec := g.Classify(context.Background(), text)
	if rec.CategoryLevel1 != uncategorized {
		t.Fatalf("expected fallback Uncategorized, got %q", rec.CategoryLevel1)
	}
	if rec.ExtractionConfidence != 0.4 {
		t.Fatalf("expected fallback confidence 0.4, got %v", rec.ExtractionConfidence)
	}
	if len(rec.Description) != 255 {
		t.Fatalf("expected description truncated to 255 chars, got %d", len(rec.Description))
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]string{
		`noise {"a":1} trailing`: `{"a":1}`,
		`{"nested":{"b":2}}`:     `{"nested":{"b":2}}`,
		`no braces here`:         "",
	}
	for in, want := range cases {
		if got := extractJSONObject(in); got != want {
			t.Errorf("extractJSONObject(%q) = %q, want %q", in, got, want)
		}
	}
}
