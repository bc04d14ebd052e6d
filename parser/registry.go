package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SourceKind is the routing decision C12 makes for a URL-sourced ingest:
// "rss" for feed-shaped URLs, "api" for everything else.
type SourceKind string

const (
	SourceRSS SourceKind = "rss"
	SourceAPI SourceKind = "api"
)

// Registry dispatches by file extension to the parser that handles it.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a Registry with the built-in parsers wired in.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &DOCXParser{}, &XLSXParser{}, &CSVParser{}, &TextParser{}, &JSONParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Register adds or overrides the parser for a format key.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}

// Get returns the parser registered for format, or an error if unsupported.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

// RouteExtension implements C12's extension routing: .xlsx/.xls/.csv ->
// excel's underlying "xlsx"/"xls"/"csv" keys, .pdf -> pdf, .docx -> docx,
// .txt -> txt, .json -> json, anything else is unsupported.
func RouteExtension(path string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "xlsx", "xls", "csv", "pdf", "docx", "txt", "json":
		return ext, true
	default:
		return "", false
	}
}

// RouteURL implements C12's URL-scheme routing: a "feed" or "rss"
// substring in the URL routes to the RSS parser, everything else is
// treated as a generic JSON API source.
func RouteURL(rawURL string) SourceKind {
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, "feed") || strings.Contains(lower, "rss") {
		return SourceRSS
	}
	return SourceAPI
}
