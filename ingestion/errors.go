package ingestion

import "errors"

var (
	// ErrRegistryRequired is returned when a loader registry is not provided.
	ErrRegistryRequired = errors.New("loader registry required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrAssetRepositoryRequired is returned when an asset repository is not provided.
	ErrAssetRepositoryRequired = errors.New("asset repository required")

	// ErrInvalidSource is returned when a Source has no path.
	ErrInvalidSource = errors.New("invalid source")
)
