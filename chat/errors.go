package chat

import "errors"

var (
	// ErrSessionRepositoryRequired is returned when a session repository is not provided.
	ErrSessionRepositoryRequired = errors.New("session repository required")

	// ErrAssetRepositoryRequired is returned when asset validation is on and no
	// asset repository is provided.
	ErrAssetRepositoryRequired = errors.New("asset repository required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrTurnConsumed is returned when Stream is called twice on one Turn.
	ErrTurnConsumed = errors.New("turn already streamed")
)
