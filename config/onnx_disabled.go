//go:build !onnx

package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/orbitalworks/recall/memory"
)

func newONNXEmbedder(*Config, *zap.Logger) (memory.Embedder, error) {
	return nil, fmt.Errorf("onnx embedding provider requires building with -tags onnx")
}
