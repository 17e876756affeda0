package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// embeddingProcessor embeds chunk batches and upserts them into the index.
type embeddingProcessor struct {
	embedder  ai.Embedder
	index     storage.VectorIndex
	namespace string
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

func newEmbeddingProcessor(embedder ai.Embedder, index storage.VectorIndex, namespace string, limiter *rate.Limiter, logger *slog.Logger) (processor, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		embedder:  embedder,
		index:     index,
		namespace: namespace,
		limiter:   limiter,
		logger:    logger.With("processor", "embeddings"),
	}, nil
}

func (ep *embeddingProcessor) process(ctx context.Context, chunks []core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if ep.limiter != nil {
		if err := ep.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	ep.logger.Debug("generating embeddings", "asset", chunks[0].AssetID, "chunks", len(texts))
	vectors, err := ep.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return classify(err, core.ErrEmbeddingService)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
			core.ErrEmbeddingService, len(chunks), len(vectors))
	}

	records := make([]core.VectorRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = core.VectorRecord{
			ID:     chunk.PointID(),
			Chunk:  chunk,
			Vector: vectors[i],
		}
	}
	if err := ep.index.Upsert(ctx, ep.namespace, records); err != nil {
		return classify(err, core.ErrIndexUnavailable)
	}
	return nil
}

// classify wraps err in fallback unless it already carries a capability
// error kind or is a context error.
func classify(err, fallback error) error {
	for _, kind := range []error{
		core.ErrEmbeddingService,
		core.ErrIndexUnavailable,
		core.ErrUnreadableFile,
		core.ErrUnsupportedFileType,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
