package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error wrapping core.ErrEmbeddingService on failure.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// FragmentFunc receives generated text in generation order. Returning an
// error aborts the generation.
type FragmentFunc func(ctx context.Context, fragment string) error

// Generator produces text for a prompt in streaming mode.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Stream generates a completion for prompt, calling fn once per fragment.
	// Returns nil when the model finishes. A failure of the model wraps
	// core.ErrGeneration; an error returned by fn is passed through.
	Stream(ctx context.Context, prompt string, fn FragmentFunc) error
}

// AIProvider aggregates the model services behind one handle.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the streaming text generation service.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
