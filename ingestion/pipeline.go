package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/chunker"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/loader"
	"github.com/poiesic/ragchat/storage"
)

const (
	// DefaultPoolSize bounds concurrent embedding batches.
	DefaultPoolSize = 5

	// DefaultBatchSize is the number of chunks embedded per request.
	DefaultBatchSize = 16

	// DefaultNamespace is the index namespace shared by all assets.
	DefaultNamespace = "ns1"
)

// Pipeline orchestrates document ingestion.
type Pipeline struct {
	registry  *loader.Registry
	assets    storage.AssetRepository
	pool      *ants.Pool
	proc      processor
	chunker   *chunker.Chunker
	namespace string
	batchSize int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// Source describes a file to ingest. Type is derived from FileName, then
// Path, when empty.
type Source struct {
	Path     string
	FileName string
	Type     core.FileType
}

func (s Source) fileType() core.FileType {
	if s.Type != "" {
		return s.Type
	}
	if s.FileName != "" {
		return core.ParseFileType(s.FileName)
	}
	return core.ParseFileType(s.Path)
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent batch processing.
// Default is DefaultPoolSize.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunking sets the chunk size and overlap in characters.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		c, err := chunker.New(chunker.WithChunkSize(size), chunker.WithOverlap(overlap))
		if err != nil {
			return err
		}
		p.chunker = c
		return nil
	}
}

// WithNamespace sets the index namespace vectors are written under.
func WithNamespace(namespace string) Option {
	return func(p *Pipeline) error {
		if strings.TrimSpace(namespace) == "" {
			return errors.New("namespace cannot be empty")
		}
		p.namespace = namespace
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per request.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithRateLimit throttles embedding requests to perSecond with the given
// burst. A non-positive perSecond disables throttling.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	registry *loader.Registry,
	embedder ai.Embedder,
	index storage.VectorIndex,
	assets storage.AssetRepository,
	opts ...Option,
) (*Pipeline, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if assets == nil {
		return nil, ErrAssetRepositoryRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}
	c, err := chunker.New()
	if err != nil {
		pool.Release()
		return nil, err
	}

	p := &Pipeline{
		registry:  registry,
		assets:    assets,
		pool:      pool,
		chunker:   c,
		namespace: DefaultNamespace,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	// Created after options are applied so it sees the final config
	proc, err := newEmbeddingProcessor(embedder, index, p.namespace, p.limiter, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.proc = proc

	return p, nil
}

// Namespace returns the index namespace the pipeline writes to.
func (p *Pipeline) Namespace() string {
	return p.namespace
}

// Supports reports whether a loader is registered for ft.
func (p *Pipeline) Supports(ft core.FileType) bool {
	return p.registry.Supports(ft)
}

// Ingest loads, chunks, embeds and indexes one document, then records it as
// an asset. The asset id is returned only when every chunk was indexed; on
// failure no asset is recorded, though vectors already upserted stay in the
// index.
func (p *Pipeline) Ingest(ctx context.Context, src Source) (core.AssetID, error) {
	if strings.TrimSpace(src.Path) == "" {
		return "", ErrInvalidSource
	}
	ft := src.fileType()
	fileName := src.FileName
	if fileName == "" {
		fileName = src.Path
	}

	pages, err := p.registry.Load(ctx, ft, src.Path)
	if err != nil {
		return "", classify(err, core.ErrUnreadableFile)
	}

	assetID := core.AssetID(uuid.NewString())
	texts := p.chunker.Split(strings.Join(pages, "\n"))
	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{AssetID: assetID, Index: i, Content: text}
	}

	logger := p.logger.With("asset", assetID, "file", fileName)
	logger.Info("ingesting document", "type", ft, "pages", len(pages), "chunks", len(chunks))

	if err := p.indexChunks(ctx, chunks); err != nil {
		logger.Error("error indexing document", "err", err)
		return "", err
	}

	asset := &core.Asset{
		ID:         assetID,
		FileName:   fileName,
		FileType:   ft,
		ChunkCount: len(chunks),
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := p.assets.CreateAsset(ctx, asset); err != nil {
		logger.Error("error recording asset", "err", err)
		return "", fmt.Errorf("recording asset: %w", err)
	}

	logger.Info("document ingested")
	return assetID, nil
}

// indexChunks submits chunk batches to the pool and waits for all of them.
// The first failure cancels batches that have not started.
func (p *Pipeline) indexChunks(ctx context.Context, chunks []core.Chunk) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		// Batches aborted by an earlier failure add nothing.
		if len(errs) > 0 && errors.Is(err, context.Canceled) {
			return
		}
		errs = append(errs, err)
		cancel()
	}

	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		batch := chunks[start:end]

		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := p.proc.process(ctx, batch); err != nil {
				fail(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	// Parent cancellation with no batch failure still aborts the ingestion.
	return ctx.Err()
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
