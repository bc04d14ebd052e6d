package ingestpipe

import "errors"

var (
	// ErrUnsupportedSource is returned when the source router cannot map a
	// path or URL to a known parser.
	ErrUnsupportedSource = errors.New("ingestpipe: unsupported source format")

	// ErrParsingFailed is returned when a format parser fails on otherwise
	// supported input.
	ErrParsingFailed = errors.New("ingestpipe: parsing failed")

	// ErrDuplicateFile names a tier-1 dedup hit: a processed file with the
	// same file_hash. The orchestrator does not return it; it reports such a
	// hit as a Result with status "duplicate" and a nil error.
	ErrDuplicateFile = errors.New("ingestpipe: duplicate file")

	// ErrEmbeddingFailed names a failed embedding batch. The orchestrator
	// does not return it; a failed batch is logged and has no per-text
	// fallback.
	ErrEmbeddingFailed = errors.New("ingestpipe: embedding generation failed")

	// ErrClassifierUnavailable names an unreachable classifier. The
	// Classifier Gateway does not return it: callers always receive a
	// fallback record instead (fail-soft contract).
	ErrClassifierUnavailable = errors.New("ingestpipe: classifier unavailable")

	// ErrStoreClosed is returned when operating against a closed store.
	ErrStoreClosed = errors.New("ingestpipe: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("ingestpipe: invalid configuration")

	// ErrFileNotFound is returned when an ingestion request names a path
	// that does not exist on disk.
	ErrFileNotFound = errors.New("ingestpipe: file not found")

	// ErrEmptyFeed names a feed poll that yields no entries. The poller does
	// not return it; it records an empty feed with status "idle".
	ErrEmptyFeed = errors.New("ingestpipe: feed returned no entries")
)
