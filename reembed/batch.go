package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// BatchProcessor re-embeds batches of vector records and writes them to the
// target index.
type BatchProcessor struct {
	target         storage.VectorIndex
	namespace      string
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding and upsert call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target storage.VectorIndex, namespace string, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		target:         target,
		namespace:      namespace,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds the chunk contents of records and upserts them with their
// original ids. Vectors are normalized before they are written.
func (bp *BatchProcessor) Process(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Chunk.Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(records) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
			core.ErrEmbeddingService, len(records), len(embeddings))
	}

	updated := make([]core.VectorRecord, len(records))
	for i, record := range records {
		updated[i] = core.VectorRecord{
			ID:     record.ID,
			Chunk:  record.Chunk,
			Vector: NormalizeVector(embeddings[i]),
		}
	}

	err = RetryWithBackoff(ctx, func(ctx context.Context) error {
		return bp.target.Upsert(ctx, bp.namespace, updated)
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}
