package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/orbitalworks/recall/memory"
	"github.com/orbitalworks/recall/memory/embedder/cached"
	"github.com/orbitalworks/recall/memory/embedder/mock"
	"github.com/orbitalworks/recall/memory/embedder/tei"
	chromemstore "github.com/orbitalworks/recall/memory/store/chromem"
	qdrantstore "github.com/orbitalworks/recall/memory/store/qdrant"
)

// NewEmbedder builds the configured embedding provider, wrapped with the
// ristretto cache when enabled.
func NewEmbedder(cfg *Config, logger *zap.Logger) (memory.Embedder, error) {
	var (
		embedder memory.Embedder
		err      error
	)
	switch cfg.Embedding.Provider {
	case "mock":
		embedder = mock.NewWithDimensions(cfg.Embedding.Dimensions)
	case "tei":
		embedder, err = tei.New(tei.Options{
			BaseURL:           cfg.Embedding.TEI.BaseURL,
			Dimensions:        cfg.Embedding.Dimensions,
			Timeout:           time.Duration(cfg.Embedding.TEI.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.Embedding.TEI.RequestsPerSecond,
			Logger:            logger,
		})
	case "onnx":
		embedder, err = newONNXEmbedder(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Embedding.Cache {
		embedder, err = cached.New(embedder, cached.Options{
			MaxBytes: cfg.Embedding.CacheMaxBytes,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return embedder, nil
}

// NewRegistry builds the configured storage backend.
func NewRegistry(cfg *Config, logger *zap.Logger) (memory.Registry, error) {
	switch cfg.Storage.Provider {
	case "chromem":
		return chromemstore.NewRegistry(chromemstore.Options{
			Path:     cfg.Storage.Chromem.Path,
			Compress: cfg.Storage.Chromem.Compress,
			Logger:   logger,
		})
	case "qdrant":
		return qdrantstore.NewRegistry(qdrantstore.Options{
			Host:       cfg.Storage.Qdrant.Host,
			Port:       cfg.Storage.Qdrant.Port,
			UseTLS:     cfg.Storage.Qdrant.UseTLS,
			APIKey:     cfg.Storage.Qdrant.APIKey,
			VectorSize: uint64(cfg.Embedding.Dimensions),
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

// NewManager assembles a Manager from configuration. The returned
// Registry should be closed when the Manager is no longer needed.
func NewManager(cfg *Config, logger *zap.Logger) (*memory.Manager, memory.Registry, error) {
	embedder, err := NewEmbedder(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	registry, err := NewRegistry(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	chunker, err := memory.NewChunker(cfg.Chunking.Window, cfg.Chunking.Overlap)
	if err != nil {
		return nil, nil, err
	}
	manager, err := memory.NewManager(registry, embedder,
		memory.WithLogger(logger),
		memory.WithChunker(chunker),
		memory.WithEmbedWorkers(cfg.Ingest.EmbedWorkers),
	)
	if err != nil {
		return nil, nil, err
	}
	return manager, registry, nil
}
