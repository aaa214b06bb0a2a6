// Package tei provides an embedder backed by a text-embeddings-inference
// HTTP gateway (the Hugging Face TEI server or anything wire-compatible).
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/orbitalworks/recall/memory"
)

// Options configures the gateway client.
type Options struct {
	// BaseURL of the TEI server, e.g. "http://localhost:8080".
	BaseURL string

	// Dimensions of the served model's vectors (384 for all-MiniLM-L6-v2).
	Dimensions int

	// Timeout per HTTP request. Default 30s.
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the gateway. Zero disables
	// throttling.
	RequestsPerSecond float64

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

// Embedder calls the TEI /embed endpoint. Safe for concurrent use.
type Embedder struct {
	baseURL    string
	dimensions int
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a TEI gateway embedder.
func New(opts Options) (*Embedder, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("%w: tei base url is required", memory.ErrInvalidArgument)
	}
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: tei dimensions must be positive", memory.ErrInvalidArgument)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		baseURL:    opts.BaseURL,
		dimensions: opts.Dimensions,
		client:     &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger,
	}, nil
}

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// EmbedDocuments embeds a batch of texts in one gateway call.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts)
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", memory.ErrEmbeddingUnavailable, err)
		}
	}

	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", memory.ErrEmbeddingUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", memory.ErrEmbeddingUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: gateway returned %d: %s", memory.ErrEmbeddingUnavailable, resp.StatusCode, msg)
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", memory.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", memory.ErrEmbeddingUnavailable, len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != e.dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", memory.ErrEmbeddingUnavailable, i, len(vec), e.dimensions)
		}
	}

	e.logger.Debug("embedded batch",
		zap.Int("texts", len(texts)),
		zap.Duration("elapsed", time.Since(start)))
	return vectors, nil
}

var _ memory.Embedder = (*Embedder)(nil)
