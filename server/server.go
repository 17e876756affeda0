package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/ragchat/chat"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/ingestion"
	"github.com/poiesic/ragchat/ratelimit"
)

const (
	// DefaultUploadDir is where uploads are staged during ingestion.
	DefaultUploadDir = "./uploads"

	// DefaultMaxUploadBytes bounds the size of one uploaded document.
	DefaultMaxUploadBytes = 32 << 20
)

// Ingester runs document ingestion.
type Ingester interface {
	Supports(ft core.FileType) bool
	Ingest(ctx context.Context, src ingestion.Source) (core.AssetID, error)
}

// ChatService manages sessions and answers queries.
type ChatService interface {
	StartSession(ctx context.Context, assetID core.AssetID) (core.SessionID, error)
	History(ctx context.Context, id core.SessionID) ([]core.Exchange, error)
	Prepare(ctx context.Context, id core.SessionID, query string) (*chat.Turn, error)
}

var (
	_ Ingester    = (*ingestion.Pipeline)(nil)
	_ ChatService = (*chat.Service)(nil)
)

// Server routes HTTP requests to the ingestion pipeline and chat service.
type Server struct {
	ingester       Ingester
	chat           ChatService
	limiter        *ratelimit.Limiter
	uploadDir      string
	maxUploadBytes int64
	trustProxy     bool
	logger         *slog.Logger
	handler        http.Handler
}

// Option configures a Server.
type Option func(*Server) error

// WithUploadDir sets the directory uploads are staged in.
func WithUploadDir(dir string) Option {
	return func(s *Server) error {
		if dir == "" {
			return errors.New("upload dir cannot be empty")
		}
		s.uploadDir = dir
		return nil
	}
}

// WithMaxUploadBytes bounds the request body of an upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) error {
		if n <= 0 {
			return errors.New("max upload bytes must be positive")
		}
		s.maxUploadBytes = n
		return nil
	}
}

// WithTrustProxy makes the rate limiter key clients by the first
// X-Forwarded-For address instead of the peer address.
func WithTrustProxy(trust bool) Option {
	return func(s *Server) error {
		s.trustProxy = trust
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New builds the HTTP server. A nil limiter disables rate limiting.
func New(ingester Ingester, chatService ChatService, limiter *ratelimit.Limiter, opts ...Option) (*Server, error) {
	if ingester == nil {
		return nil, errors.New("ingester required")
	}
	if chatService == nil {
		return nil, errors.New("chat service required")
	}

	s := &Server{
		ingester:       ingester,
		chat:           chatService,
		limiter:        limiter,
		uploadDir:      DefaultUploadDir,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "http")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("POST /documents/process", s.withRateLimit(http.HandlerFunc(s.handleProcessDocument)))
	mux.Handle("POST /chat/start", s.withRateLimit(http.HandlerFunc(s.handleStartChat)))
	mux.Handle("POST /chat/message", s.withRateLimit(http.HandlerFunc(s.handleSendMessage)))
	mux.Handle("GET /chat/history/{sessionId}", s.withRateLimit(http.HandlerFunc(s.handleHistory)))

	s.handler = chainMiddlewares(mux, withCORS, s.withLogging, withRequestID)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully, waiting up to shutdownTimeout for in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
