// Package config provides configuration loading for the memory store and
// factories that assemble a Manager from it.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RECALL_STORAGE_PROVIDER, RECALL_QUERY_DEFAULT_K, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/orbitalworks/recall/memory"
)

const envPrefix = "RECALL_"

// Config is the full configuration tree.
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Query     QueryConfig     `koanf:"query"`
}

// StorageConfig selects and configures the vector backend.
type StorageConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded persistent store.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the remote Qdrant backend.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey string `koanf:"api_key"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "mock", "tei" or "onnx" (requires the onnx build tag).
	Provider   string `koanf:"provider"`
	Dimensions int    `koanf:"dimensions"`

	// Cache enables the ristretto read-through embedding cache.
	Cache         bool  `koanf:"cache"`
	CacheMaxBytes int64 `koanf:"cache_max_bytes"`

	TEI  TEIConfig  `koanf:"tei"`
	ONNX ONNXConfig `koanf:"onnx"`
}

// TEIConfig configures the text-embeddings-inference gateway client.
type TEIConfig struct {
	BaseURL           string  `koanf:"base_url"`
	TimeoutSeconds    int     `koanf:"timeout_seconds"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// ONNXConfig configures the local ONNX embedder.
type ONNXConfig struct {
	ModelPath     string `koanf:"model_path"`
	TokenizerPath string `koanf:"tokenizer_path"`
	LibraryPath   string `koanf:"library_path"`
}

// ChunkingConfig configures the report splitter.
type ChunkingConfig struct {
	Window  int `koanf:"window"`
	Overlap int `koanf:"overlap"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// EmbedWorkers bounds concurrent embedding calls per report.
	EmbedWorkers int `koanf:"embed_workers"`
}

// QueryConfig configures retrieval.
type QueryConfig struct {
	// DefaultK is the result count callers use when they have no better
	// number.
	DefaultK int `koanf:"default_k"`
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist), overlays RECALL_* environment variables, applies
// defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	// RECALL_STORAGE_PROVIDER        -> storage.provider
	// RECALL_QUERY_DEFAULT_K         -> query.default_k
	// RECALL_EMBEDDING_TEI_BASE_URL  -> embedding.tei.base_url
	// Split on the first underscore after the prefix; descend one more
	// level when the field starts with a known subsection name.
	subsections := map[string]bool{"chromem": true, "qdrant": true, "tei": true, "onnx": true}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		section, field, ok := strings.Cut(lower, "_")
		if !ok {
			return lower
		}
		if sub, rest, ok := strings.Cut(field, "_"); ok && subsections[sub] {
			return section + "." + sub + "." + rest
		}
		return section + "." + field
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "chromem"
	}
	if cfg.Storage.Chromem.Path == "" {
		cfg.Storage.Chromem.Path = "./data/memory"
	}
	if cfg.Storage.Qdrant.Host == "" {
		cfg.Storage.Qdrant.Host = "localhost"
	}
	if cfg.Storage.Qdrant.Port == 0 {
		cfg.Storage.Qdrant.Port = 6334
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "mock"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384 // all-MiniLM-L6-v2
	}
	if cfg.Embedding.CacheMaxBytes == 0 {
		cfg.Embedding.CacheMaxBytes = 64 << 20
	}
	if cfg.Embedding.TEI.BaseURL == "" {
		cfg.Embedding.TEI.BaseURL = "http://localhost:8080"
	}
	if cfg.Embedding.TEI.TimeoutSeconds == 0 {
		cfg.Embedding.TEI.TimeoutSeconds = 30
	}

	if cfg.Chunking.Window == 0 {
		cfg.Chunking.Window = memory.DefaultChunkWindow
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = memory.DefaultChunkOverlap
	}

	if cfg.Ingest.EmbedWorkers == 0 {
		cfg.Ingest.EmbedWorkers = 4
	}
	if cfg.Query.DefaultK == 0 {
		cfg.Query.DefaultK = 4
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Storage.Provider {
	case "chromem":
		if c.Storage.Chromem.Path == "" {
			return fmt.Errorf("storage.chromem.path is required")
		}
	case "qdrant":
		if c.Storage.Qdrant.Host == "" {
			return fmt.Errorf("storage.qdrant.host is required")
		}
		if c.Storage.Qdrant.Port <= 0 || c.Storage.Qdrant.Port > 65535 {
			return fmt.Errorf("storage.qdrant.port is invalid: %d", c.Storage.Qdrant.Port)
		}
	default:
		return fmt.Errorf("unknown storage provider %q (want chromem or qdrant)", c.Storage.Provider)
	}

	switch c.Embedding.Provider {
	case "mock":
	case "tei":
		if c.Embedding.TEI.BaseURL == "" {
			return fmt.Errorf("embedding.tei.base_url is required")
		}
	case "onnx":
		if c.Embedding.ONNX.ModelPath == "" || c.Embedding.ONNX.TokenizerPath == "" {
			return fmt.Errorf("embedding.onnx.model_path and tokenizer_path are required")
		}
	default:
		return fmt.Errorf("unknown embedding provider %q (want mock, tei or onnx)", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}

	if c.Chunking.Window <= 0 {
		return fmt.Errorf("chunking.window must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Window {
		return fmt.Errorf("chunking.overlap must be in [0, window)")
	}
	if c.Ingest.EmbedWorkers <= 0 {
		return fmt.Errorf("ingest.embed_workers must be positive")
	}
	if c.Query.DefaultK <= 0 {
		return fmt.Errorf("query.default_k must be positive")
	}
	return nil
}
