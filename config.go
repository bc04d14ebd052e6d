package ingestpipe

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the ingestion pipeline. Unlike the
// legacy JSON-plus-env loader this package started from, values are merged
// defaults-first, then YAML file, then environment overrides (see Load).
type Config struct {
	DBPath     string `yaml:"db_path"`
	StorageDir string `yaml:"storage_dir"`

	LLM LLMSection `yaml:"llm"`

	Chat      LLMConfig `yaml:"chat"`
	Embedding LLMConfig `yaml:"embedding"`

	Chunking ChunkingSection `yaml:"chunking"`
	Chroma   ChromaSection   `yaml:"chromadb"`
	Paths    PathsSection    `yaml:"paths"`

	FileWatcher FileWatcherSection `yaml:"file_watcher"`
	Modules     ModulesSection     `yaml:"modules"`
	Profiles    ProfilesSection    `yaml:"profiles"`

	Formats FormatsSection `yaml:"formats"`
	Feeds   FeedsSection   `yaml:"feeds"`

	EmbeddingDim int `yaml:"embedding_dim"`

	DefaultBusinessName string `yaml:"default_business_name"`

	TaxonomyMasterPath string `yaml:"taxonomy_master_path"`

	HTTPAddr string `yaml:"http_addr"`
	APIKey   string `yaml:"api_key"`
}

// LLMSection names the prompt-facing knobs: model name, temperature, and
// prompt version. Model/base URL/key wiring for the actual HTTP transport
// lives in Chat/Embedding (LLMConfig) — a separation between "which model
// to talk about in the prompt" and "how to reach a provider".
type LLMSection struct {
	ModelName     string  `yaml:"model_name"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	PromptVersion string  `yaml:"prompt_version"`
}

// LLMConfig configures a single LLM provider endpoint; same shape as
// llm.Config so it plugs directly into llm.NewProvider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

type ChunkingSection struct {
	MaxChunkSize       int     `yaml:"max_chunk_size"`
	OverlapRatio       float64 `yaml:"overlap_ratio"`
	MinSentenceLength  int     `yaml:"min_sentence_length"`
	SemanticChunking   bool    `yaml:"semantic_chunking"`
	RecursiveThreshold int     `yaml:"recursive_threshold"`
}

type ChromaSection struct {
	PersistDirectory string `yaml:"persist_directory"`
	CollectionName   string `yaml:"collection_name"`
	DistanceMetric   string `yaml:"distance_metric"`
}

type PathsSection struct {
	UploadDir string `yaml:"upload_dir"`
	LogsDir   string `yaml:"logs_dir"`
}

type FileWatcherSection struct {
	AutoStart bool `yaml:"auto_start"`
}

type ModulesSection struct {
	Enabled []string `yaml:"enabled"`
}

type ProfilesSection struct {
	Active   string                    `yaml:"active"`
	Profiles map[string]ProfileSetting `yaml:"profiles"`
}

type ProfileSetting struct {
	LLMEnabled                        bool    `yaml:"llm_enabled"`
	SemanticChunking                  bool    `yaml:"semantic_chunking"`
	RecursiveFallback                 bool    `yaml:"recursive_fallback"`
	ClassificationConfidenceThreshold float64 `yaml:"classification_confidence_threshold"`
}

type FormatsSection struct {
	Supported []string `yaml:"supported"`
}

// FeedsSection configures the Scheduled Feed Poller (C14): a fixed list of
// RSS/API source URLs and the interval between polls.
type FeedsSection struct {
	URLs            []string `yaml:"urls"`
	PollIntervalMin int      `yaml:"poll_interval_minutes"`
}

// DefaultConfig returns the configuration defaults, including three keys
// that otherwise have no safe zero value: chunking.recursive_threshold,
// chunking.semantic_chunking, and formats.supported.
func DefaultConfig() Config {
	return Config{
		DBPath:     "",
		StorageDir: "local",
		LLM: LLMSection{
			ModelName:     "llama3.1:8b",
			Temperature:   0.1,
			MaxTokens:     512,
			PromptVersion: "v1",
		},
		Chat: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1:8b",
			BaseURL:  "http://localhost:11434",
		},
		Embedding: LLMConfig{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Chunking: ChunkingSection{
			MaxChunkSize:       600,
			OverlapRatio:       0.0,
			MinSentenceLength:  150,
			SemanticChunking:   true,
			RecursiveThreshold: 600,
		},
		Chroma: ChromaSection{
			PersistDirectory: "data/rag_db",
			CollectionName:   "ingestpipe",
			DistanceMetric:   "cosine",
		},
		Paths: PathsSection{
			UploadDir: "data/uploads",
			LogsDir:   "logs",
		},
		FileWatcher: FileWatcherSection{
			AutoStart: true,
		},
		Modules: ModulesSection{
			Enabled: []string{"pdf", "docx", "xlsx", "csv", "txt", "json", "rss", "api"},
		},
		Profiles: ProfilesSection{
			Active: "default",
			Profiles: map[string]ProfileSetting{
				"default": {
					LLMEnabled:                        true,
					SemanticChunking:                  true,
					RecursiveFallback:                 true,
					ClassificationConfidenceThreshold: 0.99,
				},
			},
		},
		Formats: FormatsSection{
			Supported: []string{"pdf", "docx", "txt", "csv", "xlsx", "json", "rss", "api"},
		},
		Feeds: FeedsSection{
			URLs:            nil,
			PollIntervalMin: 15,
		},
		EmbeddingDim:        768,
		DefaultBusinessName: "default",
		TaxonomyMasterPath:  "data/taxonomy_master.json",
		HTTPAddr:            ":8090",
	}
}

// Load builds a Config by merging, in order: DefaultConfig(), the YAML file
// at path (if it exists), then environment variable overrides, so env
// always wins over a checked-in file, which in turn wins over the
// built-in defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if len(cfg.Formats.Supported) == 0 {
		cfg.Formats.Supported = DefaultConfig().Formats.Supported
	}
	if cfg.Chunking.RecursiveThreshold == 0 {
		cfg.Chunking.RecursiveThreshold = cfg.Chunking.MaxChunkSize
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("INGESTPIPE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("INGESTPIPE_UPLOAD_DIR"); v != "" {
		cfg.Paths.UploadDir = v
	}
	if v := os.Getenv("INGESTPIPE_LOGS_DIR"); v != "" {
		cfg.Paths.LogsDir = v
	}
	if v := os.Getenv("INGESTPIPE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("INGESTPIPE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("INGESTPIPE_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("INGESTPIPE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("INGESTPIPE_TAXONOMY_MASTER_PATH"); v != "" {
		cfg.TaxonomyMasterPath = v
	}
}
