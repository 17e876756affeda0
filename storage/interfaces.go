package storage

import (
	"context"

	"github.com/poiesic/ragchat/core"
)

// SessionRepository persists chat sessions and their ordered history.
// Implementations must be thread-safe and support concurrent access.
type SessionRepository interface {
	// CreateSession stores a new session with an empty history.
	// Sets CreatedAt and UpdatedAt if not already set.
	// Returns ErrDuplicateKey if a session with the same ID exists.
	CreateSession(ctx context.Context, session *core.Session) (*core.Session, error)

	// GetSession retrieves a session by ID.
	// Returns ErrNotFound if the session doesn't exist.
	GetSession(ctx context.Context, id core.SessionID) (*core.Session, error)

	// AppendExchange appends one exchange to the end of a session's history.
	// The read, append and write happen atomically, so concurrent appends to
	// the same session are never lost.
	// Returns ErrNotFound if the session doesn't exist.
	AppendExchange(ctx context.Context, id core.SessionID, exchange core.Exchange) (*core.Session, error)

	// Close releases resources held by the repository.
	Close() error
}

// AssetRepository records successfully ingested documents.
type AssetRepository interface {
	// CreateAsset stores a new asset record.
	// Returns ErrDuplicateKey if an asset with the same ID exists.
	CreateAsset(ctx context.Context, asset *core.Asset) (*core.Asset, error)

	// GetAsset retrieves an asset by ID.
	// Returns ErrNotFound if the asset doesn't exist.
	GetAsset(ctx context.Context, id core.AssetID) (*core.Asset, error)

	// Close releases resources held by the repository.
	Close() error
}

// Filter restricts a vector query. AssetID is mandatory.
type Filter struct {
	AssetID core.AssetID
}

// VectorIndex stores chunk embeddings under a namespace and answers
// filtered nearest-neighbor queries. Failures of the underlying index wrap
// core.ErrIndexUnavailable.
type VectorIndex interface {
	// Upsert writes records under namespace. Records with an existing ID are
	// overwritten.
	Upsert(ctx context.Context, namespace string, records []core.VectorRecord) error

	// Query returns up to k chunks of filter.AssetID most similar to vector,
	// in descending score order. Chunks of any other asset are never
	// returned. Returns ErrInvalidQuery if filter.AssetID is empty or k < 1.
	Query(ctx context.Context, namespace string, vector []float32, k int, filter Filter) ([]core.ScoredChunk, error)

	// Close releases resources held by the index.
	Close() error
}

// VectorScanner is implemented by indexes that can enumerate their records.
type VectorScanner interface {
	// ScanVectors calls fn with successive batches of up to batchSize
	// records stored under namespace. Iteration stops at the first error.
	ScanVectors(ctx context.Context, namespace string, batchSize int, fn func([]core.VectorRecord) error) error

	// CountVectors returns the number of records stored under namespace.
	CountVectors(ctx context.Context, namespace string) (int, error)
}

// ValidateQuery checks the arguments common to every VectorIndex.Query.
func ValidateQuery(k int, filter Filter) error {
	if filter.AssetID == "" {
		return ErrInvalidQuery
	}
	if k < 1 {
		return ErrInvalidQuery
	}
	return nil
}
