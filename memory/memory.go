package memory

import (
	"context"
)

// Embedder converts text into vector embeddings.
// Implementations: mock.Embedder (testing), tei.Embedder (HTTP gateway),
// onnx.Embedder (local model, build-tagged), cached.Embedder (decorator).
//
// Document and query embedding are separate methods because asymmetric
// models encode the two differently. Symmetric implementations may share
// one code path.
type Embedder interface {
	// EmbedDocuments embeds a batch of chunk texts, returning one vector
	// per input in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Document is one embedded chunk ready for storage.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Match is a single similarity search hit.
// Distance is cosine distance (1 - similarity): lower is better, 0 is an
// exact match. Backends normalize their native score to this convention.
type Match struct {
	ID       string
	Content  string
	Metadata map[string]string
	Distance float32
}

// Collection is one isolated vector namespace (a single tenancy key).
// Implementations: chromem.Collection (embedded), qdrant.Collection (remote).
type Collection interface {
	// Upsert writes documents, replacing any with the same ID. Writes to
	// a collection are serialized internally, so concurrent Upsert calls
	// are safe.
	Upsert(ctx context.Context, docs []Document) error

	// Query returns up to k nearest documents by cosine distance,
	// ascending. Asking for more results than stored returns what exists.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// Registry creates, caches and destroys collections by tenancy key.
// Implementations: chromem.Registry (embedded persistent), qdrant.Registry
// (remote gRPC).
type Registry interface {
	// GetOrCreate returns the collection for key, creating it on first
	// access. Concurrent first access yields a single collection.
	GetOrCreate(ctx context.Context, key TenancyKey) (Collection, error)

	// Get returns the collection for key, or ErrCollectionNotFound if it
	// was never created.
	Get(ctx context.Context, key TenancyKey) (Collection, error)

	// Drop destroys the collection and its persisted data. Dropping a
	// collection that does not exist returns ErrCollectionNotFound.
	Drop(ctx context.Context, key TenancyKey) error

	// Close releases backend resources.
	Close() error
}
