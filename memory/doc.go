// Package memory provides a multi-tenant semantic memory store for
// autonomous research agents.
//
// Each agent owns a private collection of embedded report chunks; a single
// shared collection holds organization-wide knowledge visible to every
// agent. Reports are split into overlapping chunks, embedded, and written
// to the owning collection. Queries embed once, search the caller's
// private collection plus (optionally) the shared pool, then merge,
// de-duplicate and rank by cosine distance.
//
// Architecture:
//   - Chunker: overlapping window splitter with boundary preference
//   - Embedder: text-to-vector conversion (mock, TEI gateway, local ONNX)
//   - Registry / Collection: vector storage backend (chromem-go embedded,
//     Qdrant gRPC for production)
//   - Manager: ingest, query, delete and stats over the above
//
// Privacy model: private collections are only ever read with their owner's
// key; shared knowledge is readable by all agents but queried only when
// explicitly requested. Deleting an agent removes its private collection
// and never touches the shared pool.
package memory
