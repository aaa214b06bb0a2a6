// Package chromem implements the memory storage backend on chromem-go,
// a pure Go embedded vector database with filesystem persistence.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/orbitalworks/recall/memory"
)

// Registry manages one chromem collection per tenancy key, persisted
// under a single storage root. Collection handles are cached; first
// access creates the collection on disk.
type Registry struct {
	db     *chromem.DB
	logger *zap.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
}

// Options configures a Registry.
type Options struct {
	// Path is the storage root directory. Created if missing.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

// NewRegistry opens (or creates) a persistent store at opts.Path.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: storage path is required", memory.ErrInvalidArgument)
	}
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage root: %v", memory.ErrStorageFailure, err)
	}

	db, err := chromem.NewPersistentDB(opts.Path, opts.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: open chromem db: %v", memory.ErrStorageFailure, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		db:          db,
		logger:      logger,
		collections: make(map[string]*Collection),
	}, nil
}

// rejectEmbedding is the embedding func registered with every collection.
// All documents and queries arrive pre-embedded; chromem must never fall
// back to its built-in (OpenAI) default.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be provided by the caller")
}

// GetOrCreate returns the collection for key, creating it on first access.
func (r *Registry) GetOrCreate(ctx context.Context, key memory.TenancyKey) (memory.Collection, error) {
	name := key.CollectionName()

	r.mu.RLock()
	col, ok := r.collections[name]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if col, ok := r.collections[name]; ok {
		return col, nil
	}

	cc, err := r.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: create collection %s: %v", memory.ErrStorageFailure, name, err)
	}

	r.logger.Debug("collection opened", zap.String("collection", name))

	col = &Collection{name: name, col: cc, logger: r.logger}
	r.collections[name] = col
	return col, nil
}

// Get returns the collection for key or memory.ErrCollectionNotFound.
// Collections persisted by a previous process are picked up here.
func (r *Registry) Get(ctx context.Context, key memory.TenancyKey) (memory.Collection, error) {
	name := key.CollectionName()

	r.mu.RLock()
	col, ok := r.collections[name]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	cc := r.db.GetCollection(name, rejectEmbedding)
	if cc == nil {
		return nil, fmt.Errorf("%w: %s", memory.ErrCollectionNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if col, ok := r.collections[name]; ok {
		return col, nil
	}
	col = &Collection{name: name, col: cc, logger: r.logger}
	r.collections[name] = col
	return col, nil
}

// Drop destroys the collection and its persisted documents.
func (r *Registry) Drop(ctx context.Context, key memory.TenancyKey) error {
	name := key.CollectionName()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; !ok {
		if r.db.GetCollection(name, rejectEmbedding) == nil {
			return fmt.Errorf("%w: %s", memory.ErrCollectionNotFound, name)
		}
	}

	if err := r.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", memory.ErrStorageFailure, name, err)
	}
	delete(r.collections, name)

	r.logger.Info("collection dropped", zap.String("collection", name))
	return nil
}

// Close releases the handle cache. chromem flushes on every write, so
// there is nothing to sync.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections = make(map[string]*Collection)
	return nil
}

// Collection wraps one chromem collection. Writes are serialized by a
// mutex; reads go straight to chromem, which is read-safe.
type Collection struct {
	name   string
	col    *chromem.Collection
	mu     sync.Mutex
	logger *zap.Logger
}

// Upsert writes docs, replacing any stored under the same IDs.
func (c *Collection) Upsert(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, len(docs))
	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		}
	}

	// Clear previous versions first so re-ingestion replaces rather than
	// accumulates. Missing IDs are not an error.
	if c.col.Count() > 0 {
		if err := c.col.Delete(ctx, nil, nil, ids...); err != nil {
			c.logger.Debug("pre-upsert delete", zap.String("collection", c.name), zap.Error(err))
		}
	}

	// Concurrency 1: embeddings are precomputed, nothing to parallelize.
	if err := c.col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("%w: add documents to %s: %v", memory.ErrStorageFailure, c.name, err)
	}

	c.logger.Debug("documents upserted",
		zap.String("collection", c.name),
		zap.Int("count", len(docs)))
	return nil
}

// Query returns up to k nearest documents by cosine distance, ascending.
func (c *Collection) Query(ctx context.Context, embedding []float32, k int) ([]memory.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", memory.ErrInvalidArgument, k)
	}

	// chromem requires nResults <= document count.
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := c.col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", memory.ErrStorageFailure, c.name, err)
	}

	matches := make([]memory.Match, len(results))
	for i, res := range results {
		matches[i] = memory.Match{
			ID:       res.ID,
			Content:  res.Content,
			Metadata: res.Metadata,
			Distance: 1 - res.Similarity,
		}
	}
	return matches, nil
}

// Count returns the number of stored documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.col.Count(), nil
}

var (
	_ memory.Registry   = (*Registry)(nil)
	_ memory.Collection = (*Collection)(nil)
)
