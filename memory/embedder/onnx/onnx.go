//go:build onnx

// Package onnx provides a local embedder running all-MiniLM-class models
// through ONNX Runtime. Built only with the "onnx" tag because it needs
// the onnxruntime shared library at runtime.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/orbitalworks/recall/memory"
)

// Options configures the local embedder.
type Options struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath is the path to libonnxruntime.so. Falls back to the
	// ONNXRUNTIME_LIB environment variable when empty.
	LibraryPath string

	// Dimensions is the embedding vector size. Default 384.
	Dimensions int

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

// Embedder runs model inference locally. Inference calls are serialized;
// the ONNX session is not safe for concurrent Run calls.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
	logger     *zap.Logger
	mu         sync.Mutex
}

// New creates a local ONNX embedder.
func New(opts Options) (*Embedder, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("%w: model path is required", memory.ErrInvalidArgument)
	}
	if opts.TokenizerPath == "" {
		return nil, fmt.Errorf("%w: tokenizer path is required", memory.ErrInvalidArgument)
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	libPath := opts.LibraryPath
	if libPath == "" {
		libPath = os.Getenv("ONNXRUNTIME_LIB")
	}
	if libPath == "" {
		return nil, fmt.Errorf("%w: onnxruntime library path is required (set ONNXRUNTIME_LIB)", memory.ErrInvalidArgument)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	tokenizer, err := loadTokenizer(opts.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	logger.Info("onnx embedder ready",
		zap.String("model", opts.ModelPath),
		zap.Int("dimensions", opts.Dimensions))

	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: opts.Dimensions,
		logger:     logger,
	}, nil
}

// EmbedDocuments embeds texts one at a time through the local session.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.embed(text)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", memory.ErrEmbeddingUnavailable, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// EmbedQuery embeds a query. Symmetric model: same path as documents.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := e.embed(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// embed tokenizes, runs inference and mean-pools the hidden states.
func (e *Embedder) embed(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tokens := e.tokenizer.tokenize(text)

	const maxLen = 128
	inputIDs := make([]int64, maxLen)
	attentionMask := make([]int64, maxLen)
	tokenTypeIDs := make([]int64, maxLen)

	inputIDs[0] = int64(e.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > maxLen-2 {
		tokenLen = maxLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(e.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(maxLen))
	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()

	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()

	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDsTensor.Destroy()

	inputs := []ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor}
	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("no output tensors returned")
	}
	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	return e.pool(outputTensor, attentionMask)
}

// pool reduces the model output to a single unit vector. Handles both
// pre-pooled [1, dims] outputs and raw [1, seq, dims] hidden states.
func (e *Embedder) pool(output *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := output.GetData()
	shape := output.GetShape()

	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("output dimension mismatch: got %d, want %d", len(data), e.dimensions)
		}
		vec := make([]float32, e.dimensions)
		copy(vec, data[:e.dimensions])
		return normalize(vec), nil

	case 3:
		seqLen, hidden := shape[1], shape[2]
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		if hidden != int64(e.dimensions) {
			return nil, fmt.Errorf("hidden size mismatch: got %d, want %d", hidden, e.dimensions)
		}

		// Mean pooling over attended tokens only.
		vec := make([]float32, e.dimensions)
		var attended float32
		for i := 0; i < int(seqLen); i++ {
			if i < len(attentionMask) && attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * int(hidden)
			for j := 0; j < int(hidden); j++ {
				vec[j] += data[offset+j]
			}
		}
		if attended > 0 {
			for j := range vec {
				vec[j] /= attended
			}
		}
		return normalize(vec), nil

	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
}

// normalize converts the vector to unit length.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

// wordPieceTokenizer is a minimal BERT WordPiece tokenizer driven by a
// standard tokenizer.json vocabulary.
type wordPieceTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

// loadTokenizer reads the vocabulary from a tokenizer.json file.
func loadTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer vocabulary is empty")
	}

	return &wordPieceTokenizer{
		vocab:    parsed.Model.Vocab,
		clsToken: 101, // [CLS]
		sepToken: 102, // [SEP]
		unkToken: 100, // [UNK]
	}, nil
}

// tokenize converts text to token IDs.
func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	words := strings.Fields(strings.ToLower(text))

	var tokens []int64
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range t.splitWordPiece(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

// splitWordPiece performs greedy longest-prefix subword splitting.
func (t *wordPieceTokenizer) splitWordPiece(word string) []string {
	var subwords []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				subwords = append(subwords, sub)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}
	return subwords
}

var _ memory.Embedder = (*Embedder)(nil)
