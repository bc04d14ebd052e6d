package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the vec0
// virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS businesses (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    business_id TEXT NOT NULL REFERENCES businesses(id),
    file_name TEXT NOT NULL,
    file_type TEXT NOT NULL,
    file_path TEXT,
    source_url TEXT,
    file_hash TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',
    parser_used TEXT,
    status TEXT NOT NULL DEFAULT 'uploaded',
    total_chunks INTEGER NOT NULL DEFAULT 0,
    unique_chunks INTEGER NOT NULL DEFAULT 0,
    duplicate_chunks INTEGER NOT NULL DEFAULT 0,
    dedup_ratio REAL NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
CREATE INDEX IF NOT EXISTS idx_files_hash ON files(file_hash);

-- Enforces Tier-1 dedup's exactly-once guarantee across concurrent ingests
-- of the same bytes: the plain idx_files_hash index above only speeds up
-- FindProcessedByHash's lookup, it doesn't stop two File Records racing
-- through "processing" before either is "processed". This partial unique
-- index makes the second FinishFile call fail instead, so the loser falls
-- back to the duplicate status.
CREATE UNIQUE INDEX IF NOT EXISTS idx_files_hash_processed ON files(file_hash) WHERE status = 'processed';

CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    file_id TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    business_id TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    text TEXT NOT NULL,
    cleaned_text TEXT NOT NULL,
    tokens INTEGER NOT NULL DEFAULT 0,
    source_type TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',
    confidence REAL NOT NULL DEFAULT 0,
    semantic_hash TEXT NOT NULL,
    global_content_id TEXT REFERENCES global_content_index(id),
    reasoning_ingestion TEXT NOT NULL DEFAULT '{}',
    is_duplicate INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(file_id, semantic_hash)
);

CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);
CREATE INDEX IF NOT EXISTS idx_chunks_semantic_hash ON chunks(semantic_hash);

CREATE TABLE IF NOT EXISTS global_content_index (
    id TEXT PRIMARY KEY,
    semantic_hash TEXT NOT NULL UNIQUE,
    cleaned_text TEXT NOT NULL,
    raw_text TEXT NOT NULL,
    tokens INTEGER NOT NULL DEFAULT 0,
    business_id TEXT,
    first_seen_file_id TEXT,
    source_type TEXT,
    occurrence_count INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS taxonomy_categories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    group_name TEXT NOT NULL,
    description TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(group_name, name)
);

CREATE TABLE IF NOT EXISTS entity_links (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    category_id TEXT REFERENCES taxonomy_categories(id),
    subcategory_id TEXT REFERENCES taxonomy_categories(id),
    business_id TEXT,
    fingerprint TEXT NOT NULL UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS ingest_sources (
    id TEXT PRIMARY KEY,
    feed_url TEXT NOT NULL UNIQUE,
    total_fetched INTEGER NOT NULL DEFAULT 0,
    total_ingested INTEGER NOT NULL DEFAULT 0,
    total_failed INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'idle',
    avg_confidence REAL NOT NULL DEFAULT 0,
    last_polled_at DATETIME,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector points: sqlite-vec's vec0 module requires an integer rowid, so the
-- semantic_hash (the Vector Store Adapter's logical point ID) is mapped to
-- an internal rowid here; the vec0 table itself is created separately once
-- the embedding dimension is known.
CREATE TABLE IF NOT EXISTS vector_points (
    rowid INTEGER PRIMARY KEY AUTOINCREMENT,
    semantic_hash TEXT NOT NULL UNIQUE,
    file_id TEXT,
    business_id TEXT,
    source_type TEXT
);
`)
}

// vecTableSQL returns the vec0 virtual table DDL, parameterized by
// embedding dimension.
func vecTableSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS vec_points USING vec0(
    point_id INTEGER PRIMARY KEY,
    embedding float[%d]
);`, embeddingDim)
}
