package parser

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCSVParserParsesRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	content := "name,amount\nwidgets,100\ngadgets,250\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	p := &CSVParser{}
	result, err := p.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(result.Sections))
	}
	if !strings.Contains(result.Sections[0].Content, "widgets") {
		t.Fatalf("expected content to include row data, got %q", result.Sections[0].Content)
	}
	if result.Sections[0].Type != "table" {
		t.Fatalf("expected table section type, got %q", result.Sections[0].Type)
	}
}

func TestCSVParserEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	p := &CSVParser{}
	if _, err := p.Parse(context.Background(), path); err == nil {
		t.Fatal("expected error for empty CSV")
	}
}
