package memory

import "errors"

// Sentinel errors returned by the memory subsystem. Callers should test
// with errors.Is; all of these may arrive wrapped with call-site context.
var (
	// ErrInvalidArgument indicates a request that fails validation before
	// any embedding or storage work is attempted (bad agent ID, empty
	// text, non-positive k).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmbeddingUnavailable indicates the embedding provider failed or
	// timed out. Nothing is written to storage when this is returned.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrCollectionNotFound indicates a lookup of a collection that was
	// never created. Manager treats this as an empty result on query and
	// a no-op on delete; it only surfaces from Registry.Get and Drop.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrStorageFailure indicates the vector backend rejected a read or
	// write after validation and embedding succeeded.
	ErrStorageFailure = errors.New("storage failure")
)
