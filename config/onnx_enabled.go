//go:build onnx

package config

import (
	"go.uber.org/zap"

	"github.com/orbitalworks/recall/memory"
	"github.com/orbitalworks/recall/memory/embedder/onnx"
)

func newONNXEmbedder(cfg *Config, logger *zap.Logger) (memory.Embedder, error) {
	return onnx.New(onnx.Options{
		ModelPath:     cfg.Embedding.ONNX.ModelPath,
		TokenizerPath: cfg.Embedding.ONNX.TokenizerPath,
		LibraryPath:   cfg.Embedding.ONNX.LibraryPath,
		Dimensions:    cfg.Embedding.Dimensions,
		Logger:        logger,
	})
}
