package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

const (
	// DefaultTopK is the number of chunks retrieved per query.
	DefaultTopK = 2

	// DefaultNamespace is the index namespace shared by all assets.
	DefaultNamespace = "ns1"
)

// Service manages chat sessions and answers queries against their assets.
type Service struct {
	sessions       storage.SessionRepository
	assets         storage.AssetRepository
	index          storage.VectorIndex
	embedder       ai.Embedder
	generator      ai.Generator
	topK           int
	namespace      string
	validateAssets bool
	now            func() time.Time
	monitor        Monitor
	locks          *keyedMutex
	logger         *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithTopK sets the number of chunks retrieved per query.
// Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(s *Service) error {
		if k < 1 {
			return fmt.Errorf("top k must be positive, got %d", k)
		}
		s.topK = k
		return nil
	}
}

// WithNamespace sets the index namespace queried.
// Default is DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(s *Service) error {
		if strings.TrimSpace(namespace) == "" {
			return errors.New("namespace cannot be empty")
		}
		s.namespace = namespace
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClock overrides the time source used to stamp exchanges.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			now = time.Now
		}
		s.now = now
		return nil
	}
}

// WithAssetValidation controls whether StartSession requires the asset to
// exist. Default is true.
func WithAssetValidation(enabled bool) Option {
	return func(s *Service) error {
		s.validateAssets = enabled
		return nil
	}
}

// WithMonitor installs a Monitor called for every turn.
func WithMonitor(monitor Monitor) Option {
	return func(s *Service) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// NewService creates a new chat service. assets may be nil only when asset
// validation is disabled.
func NewService(
	sessions storage.SessionRepository,
	assets storage.AssetRepository,
	index storage.VectorIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Service, error) {
	if sessions == nil {
		return nil, ErrSessionRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Service{
		sessions:       sessions,
		assets:         assets,
		index:          index,
		embedder:       provider.Embedder(),
		generator:      provider.Generator(),
		topK:           DefaultTopK,
		namespace:      DefaultNamespace,
		validateAssets: true,
		now:            time.Now,
		monitor:        &noopMonitor{},
		locks:          newKeyedMutex(),
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.validateAssets && s.assets == nil {
		return nil, ErrAssetRepositoryRequired
	}
	s.logger = s.logger.With("component", "chat")

	return s, nil
}

// StartSession creates a session bound to assetID. When asset validation is
// on, an asset that was never ingested is rejected with core.ErrInvalidAsset.
func (s *Service) StartSession(ctx context.Context, assetID core.AssetID) (core.SessionID, error) {
	if err := core.ValidateAssetID(assetID); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrInvalidAsset, err)
	}
	if s.validateAssets {
		if _, err := s.assets.GetAsset(ctx, assetID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", fmt.Errorf("%w: %s", core.ErrInvalidAsset, assetID)
			}
			return "", err
		}
	}

	now := s.now().UTC()
	session := &core.Session{
		ID:        core.SessionID(uuid.NewString()),
		AssetID:   assetID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.sessions.CreateSession(ctx, session); err != nil {
		return "", err
	}
	s.logger.Info("session started", "session", session.ID, "asset", assetID)
	return session.ID, nil
}

// Session returns the session record.
func (s *Service) Session(ctx context.Context, id core.SessionID) (*core.Session, error) {
	if err := core.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSessionNotFound, err)
	}
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, translateNotFound(err, id)
	}
	return session, nil
}

// History returns the completed exchanges of a session in append order.
func (s *Service) History(ctx context.Context, id core.SessionID) ([]core.Exchange, error) {
	session, err := s.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.History == nil {
		return []core.Exchange{}, nil
	}
	return session.History, nil
}

// AppendExchange appends one exchange to the session history. Appends to the
// same session are serialized.
func (s *Service) AppendExchange(ctx context.Context, id core.SessionID, exchange core.Exchange) (*core.Session, error) {
	if err := core.ValidateSessionID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSessionNotFound, err)
	}
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = s.now().UTC()
	}
	if err := core.ValidateExchange(&exchange); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(id)
	defer unlock()

	session, err := s.sessions.AppendExchange(ctx, id, exchange)
	if err != nil {
		return nil, translateNotFound(err, id)
	}
	return session, nil
}

// Prepare runs the retrieval phase of a turn. It fails before any generation
// when the session is unknown or the query is blank.
func (s *Service) Prepare(ctx context.Context, id core.SessionID, query string) (*Turn, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}
	session, err := s.Session(ctx, id)
	if err != nil {
		return nil, err
	}
	s.monitor.Start(session.ID, query)

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "session", id, "err", err)
		return nil, classify(err, core.ErrEmbeddingService)
	}

	chunks, err := s.index.Query(ctx, s.namespace, vector, s.topK, storage.Filter{AssetID: session.AssetID})
	if err != nil {
		s.logger.Error("error querying index", "session", id, "asset", session.AssetID, "err", err)
		return nil, classify(err, core.ErrIndexUnavailable)
	}
	s.monitor.AfterRetrieval(chunks)
	s.logger.Debug("retrieved chunks", "session", id, "asset", session.AssetID, "chunks", len(chunks))

	prompt := BuildPrompt(query, chunks)
	s.monitor.AfterPrompt(prompt)

	return &Turn{
		service: s,
		session: session,
		query:   query,
		prompt:  prompt,
		chunks:  chunks,
	}, nil
}

// Answer prepares and streams one turn.
func (s *Service) Answer(ctx context.Context, id core.SessionID, query string, emit ai.FragmentFunc) (*core.Exchange, error) {
	turn, err := s.Prepare(ctx, id, query)
	if err != nil {
		return nil, err
	}
	return turn.Stream(ctx, emit)
}

func translateNotFound(err error, id core.SessionID) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return err
}

// classify wraps err in fallback unless it already carries a capability
// error kind or is a context error.
func classify(err, fallback error) error {
	for _, kind := range []error{
		core.ErrEmbeddingService,
		core.ErrIndexUnavailable,
		core.ErrGeneration,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
