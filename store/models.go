// Package store is the relational and vector persistence layer: the
// Global Content Index, Relational Writer, Vector Store Adapter, Taxonomy
// Registry storage, and Dedup Engine queries all live here, backed by
// SQLite (github.com/mattn/go-sqlite3) and sqlite-vec
// (github.com/asg017/sqlite-vec-go-bindings).
package store

import "time"

// File status values, per the Ingestion Orchestrator's state machine.
const (
	FileStatusUploaded   = "uploaded"
	FileStatusProcessing = "processing"
	FileStatusProcessed  = "processed"
	FileStatusDuplicate  = "duplicate"
	FileStatusFailed     = "failed"
)

// Ingest source status values.
const (
	SourceStatusIdle    = "idle"
	SourceStatusActive  = "active"
	SourceStatusPartial = "partial"
	SourceStatusFailed  = "failed"
)

// FileRecord represents one ingestion attempt of a source document.
type FileRecord struct {
	ID              string
	BusinessID      string
	FileName        string
	FileType        string
	FilePath        string
	SourceURL       string
	Metadata        string // JSON, includes file_hash
	ParserUsed      string
	Status          string
	TotalChunks     int
	UniqueChunks    int
	DuplicateChunks int
	DedupRatio      float64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ChunkRecord is one semantic chunk of one File Record.
type ChunkRecord struct {
	ID                 string
	FileID             string
	BusinessID         string
	ChunkIndex         int
	Text               string
	CleanedText        string
	Tokens             int
	SourceType         string
	Metadata           string
	Confidence         float64
	SemanticHash       string
	GlobalContentID    string
	ReasoningIngestion string // JSON-encoded Reasoning-Ingestion Block
	IsDuplicate        bool
	CreatedAt          time.Time
}

// GlobalContentEntry is the content-addressed dedup anchor (C7).
type GlobalContentEntry struct {
	ID               string
	SemanticHash     string
	CleanedText      string
	RawText          string
	Tokens           int
	BusinessID       string
	FirstSeenFileID  string
	SourceType       string
	OccurrenceCount  int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TaxonomyCategory is a controlled-vocabulary node (C6).
type TaxonomyCategory struct {
	ID          string
	Name        string
	Group       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EntityLink binds a concrete entity to a (category, subcategory, business)
// tuple with a unique dedup fingerprint.
type EntityLink struct {
	ID            string
	EntityType    string
	EntityID      string
	CategoryID    string
	SubcategoryID string
	BusinessID    string
	Fingerprint   string
	CreatedAt     time.Time
}

// IngestSource tracks metrics for a scheduled feed poll (C14).
type IngestSource struct {
	ID            string
	FeedURL       string
	TotalFetched  int
	TotalIngested int
	TotalFailed   int
	Status        string
	AvgConfidence float64
	LastPolledAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Business is the minimal owning entity referenced by business_id.
type Business struct {
	ID        string
	Name      string
	CreatedAt time.Time
}
