package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSemanticHashDeterministic(t *testing.T) {
	a := SemanticHash("hello world")
	b := SemanticHash("hello world")
	if a != b {
		t.Fatalf("expected equal hashes, got %q and %q", a, b)
	}
	c := SemanticHash("hello world!")
	if a == c {
		t.Fatalf("expected distinct hashes for distinct input")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
}

func TestFileHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.txt")
	if err := os.WriteFile(path, []byte("some file content"), 0o644); err != nil {
		t.Fatal(err)
	}

	h1, err := FileHash(path)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := FileHashReader(strings.NewReader("some file content"))
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("FileHash and FileHashReader disagree: %q vs %q", h1, h2)
	}
}
