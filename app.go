// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ragchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/ai/openai"
	"github.com/poiesic/ragchat/chat"
	"github.com/poiesic/ragchat/config"
	"github.com/poiesic/ragchat/ingestion"
	"github.com/poiesic/ragchat/loader"
	"github.com/poiesic/ragchat/ratelimit"
	"github.com/poiesic/ragchat/server"
	"github.com/poiesic/ragchat/storage"
	"github.com/poiesic/ragchat/storage/badger"
	"github.com/poiesic/ragchat/storage/firestore"
	"github.com/poiesic/ragchat/storage/qdrant"
	"github.com/poiesic/ragchat/storage/sqlite"
)

// App wires storage, the vector index, the AI provider and the services
// built on them from one configuration.
type App struct {
	cfg      *config.Config
	sessions storage.SessionRepository
	assets   storage.AssetRepository
	index    storage.VectorIndex
	provider ai.AIProvider
	pipeline *ingestion.Pipeline
	chat     *chat.Service
	limiter  *ratelimit.Limiter
	closers  []io.Closer
	logger   *slog.Logger
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	provider ai.AIProvider
	registry *loader.Registry
	monitor  chat.Monitor
	inMemory bool
	logger   *slog.Logger
}

// WithProvider uses provider instead of building an OpenAI-compatible one
// from the configuration. The App takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *appOptions) {
		o.provider = provider
	}
}

// WithRegistry replaces the default document loaders.
func WithRegistry(registry *loader.Registry) Option {
	return func(o *appOptions) {
		o.registry = registry
	}
}

// WithMonitor observes every chat turn.
func WithMonitor(monitor chat.Monitor) Option {
	return func(o *appOptions) {
		o.monitor = monitor
	}
}

// WithInMemory keeps BadgerDB data in memory. Other backends are unaffected.
func WithInMemory() Option {
	return func(o *appOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *appOptions) {
		o.logger = logger
	}
}

// Open builds an App from cfg. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &appOptions{
		registry: loader.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	app := &App{
		cfg:    cfg,
		logger: options.logger.With("component", "app"),
	}

	if err := app.openStorage(ctx, options.inMemory); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.openIndex(ctx, options.inMemory); err != nil {
		app.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	app.provider = provider
	app.closers = append(app.closers, provider)

	pipeline, err := ingestion.NewPipeline(options.registry, provider.Embedder(), app.index, app.assets,
		ingestion.WithPoolSize(cfg.Ingestion.Concurrency),
		ingestion.WithChunking(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		ingestion.WithBatchSize(cfg.Ingestion.BatchSize),
		ingestion.WithNamespace(cfg.Index.Namespace),
		ingestion.WithRateLimit(cfg.Ingestion.EmbedRequestsPerSecond, cfg.Ingestion.EmbedBurst),
		ingestion.WithLogger(options.logger),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.pipeline = pipeline

	chatOpts := []chat.Option{
		chat.WithTopK(cfg.Chat.TopK),
		chat.WithNamespace(cfg.Index.Namespace),
		chat.WithAssetValidation(cfg.Chat.ValidateAssets),
		chat.WithLogger(options.logger),
	}
	if options.monitor != nil {
		chatOpts = append(chatOpts, chat.WithMonitor(options.monitor))
	}
	app.chat, err = chat.NewService(app.sessions, app.assets, app.index, provider, chatOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.RateLimit.Limit > 0 {
		app.limiter, err = ratelimit.New(
			ratelimit.WithLimit(cfg.RateLimit.Limit),
			ratelimit.WithInterval(cfg.RateInterval()),
		)
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	app.logger.Info("opened",
		"storage", cfg.Storage.Backend,
		"index", cfg.Index.Backend,
		"namespace", cfg.Index.Namespace)
	return app, nil
}

func (a *App) openStorage(ctx context.Context, inMemory bool) error {
	switch a.cfg.Storage.Backend {
	case config.StorageBadger:
		repos, err := a.badgerRepositories(inMemory)
		if err != nil {
			return err
		}
		a.sessions, a.assets = repos.Sessions, repos.Assets
	case config.StorageSQLite:
		store, err := sqlite.Open(a.cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store)
		a.sessions, a.assets = store, store
	case config.StorageFirestore:
		store, err := firestore.NewStore(ctx, a.cfg.Storage.FirestoreProject, a.cfg.Storage.FirestoreCredentials)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store)
		a.sessions, a.assets = store, store
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) openIndex(ctx context.Context, inMemory bool) error {
	switch a.cfg.Index.Backend {
	case config.IndexBadger:
		repos, err := a.badgerRepositories(inMemory)
		if err != nil {
			return err
		}
		a.index = repos.Index
	case config.IndexQdrant:
		q := a.cfg.Index.Qdrant
		idx, err := qdrant.New(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    a.cfg.QdrantTimeout(),
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, idx)
		if err := idx.EnsureCollection(ctx, q.Dimension); err != nil {
			return err
		}
		a.index = idx
	default:
		return fmt.Errorf("unknown index backend %q", a.cfg.Index.Backend)
	}
	return nil
}

// badgerRepositories opens the BadgerDB backend once and shares it between
// the storage and index roles.
func (a *App) badgerRepositories(inMemory bool) (*badger.Repositories, error) {
	for _, c := range a.closers {
		if repos, ok := c.(*badger.Repositories); ok {
			return repos, nil
		}
	}

	var (
		repos *badger.Repositories
		err   error
	)
	if inMemory {
		repos, err = badger.NewMemoryRepositories()
	} else {
		var backend *badger.Backend
		backend, err = badger.OpenBackend(a.cfg.Storage.DataPath, false)
		if err != nil {
			return nil, err
		}
		repos, err = badger.NewRepositories(backend)
		if err != nil {
			backend.Close()
		}
	}
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, repos)
	return repos, nil
}

// Close releases everything the App opened, in reverse order.
func (a *App) Close() error {
	if a.pipeline != nil {
		a.pipeline.Release()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Error("error closing component", "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Config returns the configuration the App was opened with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Pipeline returns the ingestion pipeline.
func (a *App) Pipeline() *ingestion.Pipeline {
	return a.pipeline
}

// Chat returns the chat service.
func (a *App) Chat() *chat.Service {
	return a.chat
}

// Index returns the vector index.
func (a *App) Index() storage.VectorIndex {
	return a.index
}

// Embedder returns the provider's embedder.
func (a *App) Embedder() ai.Embedder {
	return a.provider.Embedder()
}

// Scanner returns the index as a VectorScanner, or false when the index
// cannot enumerate its records.
func (a *App) Scanner() (storage.VectorScanner, bool) {
	scanner, ok := a.index.(storage.VectorScanner)
	return scanner, ok
}

// NewServer builds the HTTP server over the App's services.
func (a *App) NewServer(logger *slog.Logger) (*server.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return server.New(a.pipeline, a.chat, a.limiter,
		server.WithUploadDir(a.cfg.Server.UploadDir),
		server.WithMaxUploadBytes(a.cfg.Server.MaxUploadBytes),
		server.WithTrustProxy(a.cfg.Server.TrustProxy),
		server.WithLogger(logger),
	)
}
