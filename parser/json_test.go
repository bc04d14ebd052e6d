package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONParserReindents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"title":"Q3 Report","revenue":1200000}`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p := &JSONParser{}
	result, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(result.Sections))
	}
	if !strings.Contains(result.Sections[0].Content, "Q3 Report") {
		t.Fatalf("expected content to include title, got %q", result.Sections[0].Content)
	}
}

func TestJSONParserInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	p := &JSONParser{}
	if _, err := p.Parse(context.Background(), path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
