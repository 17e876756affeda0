// Package firestore implements the session and asset repositories on
// Google Cloud Firestore. Sessions live in the "chatSessions" collection with
// their history embedded as an array, assets in "assets".
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

const (
	sessionsCollection = "chatSessions"
	assetsCollection   = "assets"
)

// Store implements storage.SessionRepository and storage.AssetRepository.
type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

var (
	_ storage.SessionRepository = (*Store)(nil)
	_ storage.AssetRepository   = (*Store)(nil)
)

// NewStore creates a Firestore store for projectID. A non-empty
// credentialsFile is used instead of application default credentials. When
// FIRESTORE_EMULATOR_HOST is set the client talks to the emulator.
func NewStore(ctx context.Context, projectID, credentialsFile string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{
		client: client,
		logger: slog.Default().With("component", "firestore-store"),
	}, nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sessionDoc(id core.SessionID) *firestore.DocumentRef {
	return s.client.Collection(sessionsCollection).Doc(string(id))
}

func (s *Store) assetDoc(id core.AssetID) *firestore.DocumentRef {
	return s.client.Collection(assetsCollection).Doc(string(id))
}

type exchangeDoc struct {
	UserMessage   string    `firestore:"userMessage"`
	AgentResponse string    `firestore:"agentResponse"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type sessionDoc struct {
	AssetID   string        `firestore:"assetId"`
	History   []exchangeDoc `firestore:"history"`
	CreatedAt time.Time     `firestore:"createdAt"`
	UpdatedAt time.Time     `firestore:"updatedAt"`
}

type assetDoc struct {
	FileName   string    `firestore:"fileName"`
	FileType   string    `firestore:"fileType"`
	ChunkCount int       `firestore:"chunkCount"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

func toSessionDoc(session *core.Session) sessionDoc {
	doc := sessionDoc{
		AssetID:   string(session.AssetID),
		History:   make([]exchangeDoc, 0, len(session.History)),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	for _, ex := range session.History {
		doc.History = append(doc.History, exchangeDoc(ex))
	}
	return doc
}

func fromSessionDoc(id core.SessionID, doc sessionDoc) *core.Session {
	session := &core.Session{
		ID:        id,
		AssetID:   core.AssetID(doc.AssetID),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
	for _, ex := range doc.History {
		session.History = append(session.History, core.Exchange{
			UserMessage:   ex.UserMessage,
			AgentResponse: ex.AgentResponse,
			CreatedAt:     ex.CreatedAt.UTC(),
		})
	}
	return session
}

// CreateSession stores a new session document.
func (s *Store) CreateSession(ctx context.Context, session *core.Session) (*core.Session, error) {
	if err := core.ValidateSessionID(session.ID); err != nil {
		return nil, err
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	if _, err := s.sessionDoc(session.ID).Create(ctx, toSessionDoc(session)); err != nil {
		return nil, translateError("CreateSession", err)
	}
	return session, nil
}

// GetSession retrieves a session document.
func (s *Store) GetSession(ctx context.Context, id core.SessionID) (*core.Session, error) {
	snap, err := s.sessionDoc(id).Get(ctx)
	if err != nil {
		return nil, translateError("GetSession", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetSession decode: %w", err)
	}
	return fromSessionDoc(id, doc), nil
}

// AppendExchange reads, appends and writes the session inside a Firestore
// transaction, which retries automatically on contention.
func (s *Store) AppendExchange(ctx context.Context, id core.SessionID, exchange core.Exchange) (*core.Session, error) {
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now().UTC()
	}

	ref := s.sessionDoc(id)
	var result *core.Session
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc sessionDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore AppendExchange decode: %w", err)
		}

		session := fromSessionDoc(id, doc)
		session.History = append(session.History, exchange)
		session.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, toSessionDoc(session)); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, translateError("AppendExchange", err)
	}
	return result, nil
}

// CreateAsset stores a new asset document.
func (s *Store) CreateAsset(ctx context.Context, asset *core.Asset) (*core.Asset, error) {
	if err := core.ValidateAssetID(asset.ID); err != nil {
		return nil, err
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	doc := assetDoc{
		FileName:   asset.FileName,
		FileType:   string(asset.FileType),
		ChunkCount: asset.ChunkCount,
		CreatedAt:  asset.CreatedAt,
	}
	if _, err := s.assetDoc(asset.ID).Create(ctx, doc); err != nil {
		return nil, translateError("CreateAsset", err)
	}
	return asset, nil
}

// GetAsset retrieves an asset document.
func (s *Store) GetAsset(ctx context.Context, id core.AssetID) (*core.Asset, error) {
	snap, err := s.assetDoc(id).Get(ctx)
	if err != nil {
		return nil, translateError("GetAsset", err)
	}

	var doc assetDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetAsset decode: %w", err)
	}
	return &core.Asset{
		ID:         id,
		FileName:   doc.FileName,
		FileType:   core.FileType(doc.FileType),
		ChunkCount: doc.ChunkCount,
		CreatedAt:  doc.CreatedAt.UTC(),
	}, nil
}

// translateError maps gRPC status codes onto storage sentinels.
func translateError(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return storage.ErrNotFound
	case codes.AlreadyExists:
		return fmt.Errorf("%w: firestore %s", storage.ErrDuplicateKey, op)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return fmt.Errorf("firestore %s: %w", op, err)
}
