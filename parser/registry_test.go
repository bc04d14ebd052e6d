package parser

import "testing"

func TestRouteExtension(t *testing.T) {
	cases := map[string]struct {
		key string
		ok  bool
	}{
		"report.pdf":     {"pdf", true},
		"report.PDF":     {"pdf", true},
		"memo.docx":      {"docx", true},
		"notes.txt":      {"txt", true},
		"data.json":      {"json", true},
		"sheet.xlsx":     {"xlsx", true},
		"sheet.xls":      {"xls", true},
		"table.csv":      {"csv", true},
		"archive.zip":    {"", false},
		"no_extension":   {"", false},
	}
	for in, want := range cases {
		key, ok := RouteExtension(in)
		if key != want.key || ok != want.ok {
			t.Errorf("RouteExtension(%q) = (%q, %v), want (%q, %v)", in, key, ok, want.key, want.ok)
		}
	}
}

func TestRouteURL(t *testing.T) {
	cases := map[string]SourceKind{
		"https://example.com/news/feed":        SourceRSS,
		"https://example.com/rss.xml":           SourceRSS,
		"https://api.example.com/v1/reports":    SourceAPI,
		"https://example.com/RSS/latest":        SourceRSS,
	}
	for in, want := range cases {
		if got := RouteURL(in); got != want {
			t.Errorf("RouteURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRegistryGetUnsupported(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("pptx"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
