package memory

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Source labels attached to query results, naming the collection class a
// chunk came from. They also appear in the assembled context string.
const (
	SourcePrivate = "private_memory"
	SourceShared  = "shared_knowledge"
)

// Reserved metadata keys written on every ingested chunk. Caller-supplied
// metadata cannot override them.
const (
	metaAgentID     = "agent_id"
	metaReportID    = "report_id"
	metaReportTitle = "report_title"
	metaChunkIndex  = "chunk_index"
	metaTotalChunks = "total_chunks"
	metaSource      = "source"
	metaShared      = "is_shared_knowledge"
	metaIngestedAt  = "ingested_at"

	sourceAgentReport = "agent_report"
)

// IngestRequest describes one report to ingest.
type IngestRequest struct {
	AgentID  string
	ReportID string
	Title    string
	Content  string

	// Shared routes the report to the shared organizational collection
	// instead of the agent's private one. The agent ID is still recorded
	// in chunk metadata as provenance.
	Shared bool

	// Metadata is merged into each chunk's metadata. Reserved keys are
	// ignored.
	Metadata map[string]string
}

// IngestResult reports what a successful ingestion wrote.
type IngestResult struct {
	Collection     string
	ChunksIngested int
	DocumentIDs    []string
}

// QueryRequest describes one retrieval request.
type QueryRequest struct {
	AgentID string
	Query   string

	// K is the maximum number of results after merging and dedup.
	// Must be positive.
	K int

	// IncludeShared also searches the shared organizational collection.
	IncludeShared bool
}

// Retrieved is one ranked result chunk.
type Retrieved struct {
	Content  string
	Source   string // SourcePrivate or SourceShared
	Distance float32
	Metadata map[string]string
}

// QueryResult is the merged, de-duplicated, ranked answer to a query.
type QueryResult struct {
	// Results holds at most K chunks in ascending distance order.
	Results []Retrieved

	// Context is the prompt-ready rendering of Results: each chunk
	// prefixed with its source label, joined by blank lines.
	Context string

	// TotalResults counts raw hits across collections before dedup.
	TotalResults int

	// UniqueResults counts distinct chunk texts before truncation to K.
	UniqueResults int
}

// AgentStats summarizes one agent's footprint in the store.
type AgentStats struct {
	AgentID           string
	PrivateCollection string
	PrivateChunks     int
	SharedChunks      int
}

// Manager orchestrates the memory store: chunking, embedding, per-tenant
// routing, hybrid retrieval and lifecycle. It is safe for concurrent use.
type Manager struct {
	registry     Registry
	embedder     Embedder
	chunker      *Chunker
	logger       *zap.Logger
	embedWorkers int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Nil keeps the no-op default.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithChunker replaces the default 1000/200 chunker.
func WithChunker(c *Chunker) Option {
	return func(m *Manager) {
		if c != nil {
			m.chunker = c
		}
	}
}

// WithEmbedWorkers bounds concurrent embedding calls during ingestion.
func WithEmbedWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.embedWorkers = n
		}
	}
}

// NewManager creates a Manager over the given backend and embedder.
func NewManager(registry Registry, embedder Embedder, opts ...Option) (*Manager, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidArgument)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidArgument)
	}
	m := &Manager{
		registry:     registry,
		embedder:     embedder,
		chunker:      DefaultChunker(),
		logger:       zap.NewNop(),
		embedWorkers: 4,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Ingest chunks, embeds and stores one report. Chunk IDs are derived from
// the collection, report ID and chunk index, so re-ingesting the same
// report (a retry, or a revised report under the same ID) overwrites the
// old chunks instead of duplicating them.
//
// Ingestion is not transactional: a failure partway leaves earlier chunks
// stored. Because IDs are deterministic, retrying the same request
// converges rather than compounding.
func (m *Manager) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if err := ValidateAgentID(req.AgentID); err != nil {
		return nil, err
	}
	if req.ReportID == "" {
		return nil, fmt.Errorf("%w: report id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: report content is empty", ErrInvalidArgument)
	}

	key := Private(req.AgentID)
	if req.Shared {
		key = Shared()
	}
	collection := key.CollectionName()

	chunks := m.chunker.Split(req.Content)
	m.logger.Debug("ingesting report",
		zap.String("agent_id", req.AgentID),
		zap.String("report_id", req.ReportID),
		zap.String("collection", collection),
		zap.Int("chunks", len(chunks)),
		zap.Bool("shared", req.Shared))

	vectors, err := m.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	col, err := m.registry.GetOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	docs := make([]Document, len(chunks))
	ids := make([]string, len(chunks))
	for i, text := range chunks {
		id := chunkID(collection, req.ReportID, i)
		docs[i] = Document{
			ID:        id,
			Content:   text,
			Embedding: vectors[i],
			Metadata:  m.chunkMetadata(req, i, len(chunks), now),
		}
		ids[i] = id
	}

	if err := col.Upsert(ctx, docs); err != nil {
		return nil, err
	}

	m.logger.Info("report ingested",
		zap.String("agent_id", req.AgentID),
		zap.String("report_id", req.ReportID),
		zap.String("collection", collection),
		zap.Int("chunks", len(docs)))

	return &IngestResult{
		Collection:     collection,
		ChunksIngested: len(docs),
		DocumentIDs:    ids,
	}, nil
}

// Query embeds the query once, searches the agent's private collection
// and optionally the shared pool, then merges by ascending distance,
// drops duplicate chunk texts (first occurrence wins) and truncates to K.
// Collections that do not exist yet contribute nothing.
func (m *Manager) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	if err := ValidateAgentID(req.AgentID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ErrInvalidArgument)
	}
	if req.K <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, req.K)
	}

	qvec, err := m.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrEmbeddingUnavailable, err)
	}

	merged, err := m.collect(ctx, Private(req.AgentID), qvec, req.K, SourcePrivate, nil)
	if err != nil {
		return nil, err
	}
	if req.IncludeShared {
		merged, err = m.collect(ctx, Shared(), qvec, req.K, SourceShared, merged)
		if err != nil {
			return nil, err
		}
	}

	sortByDistance(merged)
	total := len(merged)
	unique := dedupByContent(merged)

	results := unique
	if len(results) > req.K {
		results = results[:req.K]
	}

	m.logger.Debug("query complete",
		zap.String("agent_id", req.AgentID),
		zap.Int("total", total),
		zap.Int("unique", len(unique)),
		zap.Int("returned", len(results)),
		zap.Bool("shared", req.IncludeShared))

	return &QueryResult{
		Results:       results,
		Context:       buildContext(results),
		TotalResults:  total,
		UniqueResults: len(unique),
	}, nil
}

// QueryShared searches only the shared organizational collection. Used by
// callers that want common knowledge without any private context.
func (m *Manager) QueryShared(ctx context.Context, query string, k int) (*QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query text is empty", ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrInvalidArgument, k)
	}

	qvec, err := m.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrEmbeddingUnavailable, err)
	}

	merged, err := m.collect(ctx, Shared(), qvec, k, SourceShared, nil)
	if err != nil {
		return nil, err
	}

	sortByDistance(merged)
	total := len(merged)
	unique := dedupByContent(merged)
	results := unique
	if len(results) > k {
		results = results[:k]
	}

	return &QueryResult{
		Results:       results,
		Context:       buildContext(results),
		TotalResults:  total,
		UniqueResults: len(unique),
	}, nil
}

// DeleteAgentMemory destroys an agent's private collection and all its
// persisted chunks. The shared pool is never touched. Deleting an agent
// that has no collection is a no-op.
func (m *Manager) DeleteAgentMemory(ctx context.Context, agentID string) error {
	if err := ValidateAgentID(agentID); err != nil {
		return err
	}
	err := m.registry.Drop(ctx, Private(agentID))
	if errors.Is(err, ErrCollectionNotFound) {
		m.logger.Debug("delete of absent collection", zap.String("agent_id", agentID))
		return nil
	}
	if err != nil {
		return err
	}
	m.logger.Info("agent memory deleted", zap.String("agent_id", agentID))
	return nil
}

// Stats reports the agent's chunk counts. Report-level counts are not
// available from the vector index; chunk counts are what it can answer.
func (m *Manager) Stats(ctx context.Context, agentID string) (*AgentStats, error) {
	if err := ValidateAgentID(agentID); err != nil {
		return nil, err
	}
	stats := &AgentStats{
		AgentID:           agentID,
		PrivateCollection: Private(agentID).CollectionName(),
	}

	n, err := m.countCollection(ctx, Private(agentID))
	if err != nil {
		return nil, err
	}
	stats.PrivateChunks = n

	n, err = m.countCollection(ctx, Shared())
	if err != nil {
		return nil, err
	}
	stats.SharedChunks = n

	return stats, nil
}

// embedChunks embeds chunk texts with a bounded worker pool. Any failure
// aborts the remaining work and nothing is written.
func (m *Manager) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.embedWorkers)
	for i, text := range texts {
		g.Go(func() error {
			vecs, err := m.embedder.EmbedDocuments(gctx, []string{text})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if len(vecs) != 1 {
				return fmt.Errorf("chunk %d: expected 1 vector, got %d", i, len(vecs))
			}
			vectors[i] = vecs[0]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return vectors, nil
}

// collect queries one collection and appends labelled results to acc.
// An absent collection contributes nothing.
func (m *Manager) collect(ctx context.Context, key TenancyKey, qvec []float32, k int, source string, acc []Retrieved) ([]Retrieved, error) {
	col, err := m.registry.Get(ctx, key)
	if errors.Is(err, ErrCollectionNotFound) {
		return acc, nil
	}
	if err != nil {
		return nil, err
	}
	matches, err := col.Query(ctx, qvec, k)
	if err != nil {
		return nil, err
	}
	for _, match := range matches {
		acc = append(acc, Retrieved{
			Content:  match.Content,
			Source:   source,
			Distance: match.Distance,
			Metadata: match.Metadata,
		})
	}
	return acc, nil
}

func (m *Manager) countCollection(ctx context.Context, key TenancyKey) (int, error) {
	col, err := m.registry.Get(ctx, key)
	if errors.Is(err, ErrCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return col.Count(ctx)
}

// chunkMetadata builds the metadata map for one chunk. Caller metadata is
// merged first so reserved keys always win.
func (m *Manager) chunkMetadata(req IngestRequest, index, total int, ingestedAt string) map[string]string {
	md := make(map[string]string, len(req.Metadata)+8)
	for k, v := range req.Metadata {
		md[k] = v
	}
	md[metaAgentID] = req.AgentID
	md[metaReportID] = req.ReportID
	md[metaReportTitle] = req.Title
	md[metaChunkIndex] = fmt.Sprintf("%d", index)
	md[metaTotalChunks] = fmt.Sprintf("%d", total)
	md[metaSource] = sourceAgentReport
	md[metaShared] = fmt.Sprintf("%t", req.Shared)
	md[metaIngestedAt] = ingestedAt
	return md
}

// chunkID derives a stable document ID from the chunk's coordinates.
// Same collection, report and index always produce the same ID.
func chunkID(collection, reportID string, index int) string {
	name := fmt.Sprintf("recall://%s/%s#%d", collection, reportID, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func sortByDistance(results []Retrieved) {
	// Stable so equal distances keep private-before-shared append order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
}

// dedupByContent drops results whose exact text was already seen. Results
// must be sorted; the first (closest) occurrence survives.
func dedupByContent(results []Retrieved) []Retrieved {
	seen := make(map[[sha256.Size]byte]struct{}, len(results))
	unique := make([]Retrieved, 0, len(results))
	for _, r := range results {
		h := sha256.Sum256([]byte(r.Content))
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}

// buildContext renders ranked results as a prompt-ready block.
func buildContext(results []Retrieved) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", r.Source, r.Content)
	}
	return strings.Join(parts, "\n\n")
}
