// Package qdrant implements the memory storage backend on a Qdrant server
// over gRPC. Suited to deployments where the embedded store's single-host
// persistence is not enough.
package qdrant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/orbitalworks/recall/memory"
)

// Options configures the Qdrant registry.
type Options struct {
	// Host and Port of the Qdrant gRPC endpoint. Default localhost:6334.
	Host string
	Port int

	// UseTLS enables transport security. APIKey is sent when non-empty.
	UseTLS bool
	APIKey string

	// VectorSize is the embedding dimension used when creating
	// collections. Required.
	VectorSize uint64

	// RequestTimeout bounds each call. Default 30s.
	RequestTimeout time.Duration

	// RetryAttempts for transient errors. Default 3.
	RetryAttempts int

	// Logger defaults to a no-op logger when nil.
	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 6334
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.RetryAttempts == 0 {
		o.RetryAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Registry manages one Qdrant collection per tenancy key.
type Registry struct {
	client *qdrant.Client
	opts   Options
	logger *zap.Logger

	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewRegistry connects to Qdrant and verifies the connection.
func NewRegistry(opts Options) (*Registry, error) {
	opts.applyDefaults()
	if opts.VectorSize == 0 {
		return nil, fmt.Errorf("%w: vector size is required", memory.ErrInvalidArgument)
	}

	cfg := &qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		UseTLS: opts.UseTLS,
		APIKey: opts.APIKey,
	}
	if !opts.UseTLS {
		cfg.GrpcOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		}
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create qdrant client: %v", memory.ErrStorageFailure, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: qdrant health check: %v", memory.ErrStorageFailure, err)
	}

	opts.Logger.Info("qdrant connection established",
		zap.String("host", opts.Host),
		zap.Int("port", opts.Port))

	return &Registry{
		client:      client,
		opts:        opts,
		logger:      opts.Logger,
		collections: make(map[string]*Collection),
	}, nil
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
	if col, ok := r.collections[name]; ok {
		return col, nil
	}

	exists, err := r.collectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		err := r.retry(ctx, func(ctx context.Context) error {
			return r.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     r.opts.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		// A concurrent creator (another process) is fine.
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return nil, fmt.Errorf("%w: create collection %s: %v", memory.ErrStorageFailure, name, err)
		}
		r.logger.Info("collection created", zap.String("collection", name))
	}

	col = &Collection{name: name, registry: r}
	r.collections[name] = col
	return col, nil
}

// Get returns the collection for key or memory.ErrCollectionNotFound.
func (r *Registry) Get(ctx context.Context, key memory.TenancyKey) (memory.Collection, error) {
	name := key.CollectionName()

	r.mu.RLock()
	col, ok := r.collections[name]
	r.mu.RUnlock()
	if ok {
		return col, nil
	}

	exists, err := r.collectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", memory.ErrCollectionNotFound, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if col, ok := r.collections[name]; ok {
		return col, nil
	}
	col = &Collection{name: name, registry: r}
	r.collections[name] = col
	return col, nil
}

// Drop destroys the collection and all its points.
func (r *Registry) Drop(ctx context.Context, key memory.TenancyKey) error {
	name := key.CollectionName()

	exists, err := r.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", memory.ErrCollectionNotFound, name)
	}

	err = r.retry(ctx, func(ctx context.Context) error {
		return r.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		return fmt.Errorf("%w: delete collection %s: %v", memory.ErrStorageFailure, name, err)
	}

	r.mu.Lock()
	delete(r.collections, name)
	r.mu.Unlock()

	r.logger.Info("collection dropped", zap.String("collection", name))
	return nil
}

// Close closes the gRPC connection.
func (r *Registry) Close() error {
	return r.client.Close()
}

func (r *Registry) collectionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.retry(ctx, func(ctx context.Context) error {
		ok, err := r.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: check collection %s: %v", memory.ErrStorageFailure, name, err)
	}
	return exists, nil
}

// retry runs op with exponential backoff on transient gRPC errors.
func (r *Registry) retry(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt <= r.opts.RetryAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
		err := op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) || attempt == r.opts.RetryAttempts {
			return lastErr
		}

		r.logger.Debug("retrying after transient error",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return lastErr
}

func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// Collection is one Qdrant collection. Qdrant serializes writes server
// side; no client-side locking is needed.
type Collection struct {
	name     string
	registry *Registry
}

// Upsert writes points, replacing any stored under the same IDs. Document
// IDs must be UUIDs (the ingestion pipeline guarantees this).
func (c *Collection) Upsert(ctx context.Context, docs []memory.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		payload := make(map[string]*qdrant.Value, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
		}
		payload["content"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: doc.Content}}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: payload,
		}
	}

	err := c.registry.retry(ctx, func(ctx context.Context) error {
		_, err := c.registry.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.name,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: upsert into %s: %v", memory.ErrStorageFailure, c.name, err)
	}

	c.registry.logger.Debug("points upserted",
		zap.String("collection", c.name),
		zap.Int("count", len(points)))
	return nil
}

// Query returns up to k nearest points by cosine distance, ascending.
func (c *Collection) Query(ctx context.Context, embedding []float32, k int) ([]memory.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", memory.ErrInvalidArgument, k)
	}

	var scored []*qdrant.ScoredPoint
	err := c.registry.retry(ctx, func(ctx context.Context) error {
		res, err := c.registry.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: c.name,
			Query:          qdrant.NewQuery(embedding...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", memory.ErrStorageFailure, c.name, err)
	}

	matches := make([]memory.Match, len(scored))
	for i, point := range scored {
		metadata := make(map[string]string, len(point.Payload))
		var content string
		for k, v := range point.Payload {
			s := v.GetStringValue()
			if k == "content" {
				content = s
				continue
			}
			metadata[k] = s
		}
		matches[i] = memory.Match{
			ID:       point.Id.GetUuid(),
			Content:  content,
			Metadata: metadata,
			// Cosine scores are similarity, higher is better.
			Distance: 1 - point.Score,
		}
	}
	return matches, nil
}

// Count returns the exact number of stored points.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var count uint64
	err := c.registry.retry(ctx, func(ctx context.Context) error {
		n, err := c.registry.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: c.name,
			Exact:          qdrant.PtrOf(true),
		})
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", memory.ErrStorageFailure, c.name, err)
	}
	return int(count), nil
}

var (
	_ memory.Registry   = (*Registry)(nil)
	_ memory.Collection = (*Collection)(nil)
)
