package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

const fileHashBufSize = 8 * 1024

// FileHash computes the SHA-256 fingerprint of a file's byte stream, reading
// in 8 KiB chunks. Returned as lowercase hex.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	return FileHashReader(f)
}

// FileHashReader hashes an arbitrary reader using the same 8 KiB buffer
// convention as FileHash; useful for in-memory uploads and synthetic feed
// entries that never touch disk.
func FileHashReader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, fileHashBufSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hashing stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SemanticHash computes the SHA-256 fingerprint of cleaned chunk text,
// returned as lowercase hex. This is the cross-file dedup key and the vector
// store's point ID.
func SemanticHash(cleanedText string) string {
	sum := sha256.Sum256([]byte(cleanedText))
	return hex.EncodeToString(sum[:])
}
