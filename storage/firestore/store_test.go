package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestSessionDocConversion(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &core.Session{
		ID:      "s1",
		AssetID: "a1",
		History: []core.Exchange{
			{UserMessage: "q1", AgentResponse: "a1", CreatedAt: now},
			{UserMessage: "q2", AgentResponse: "a2", CreatedAt: now.Add(time.Second)},
		},
		CreatedAt: now,
		UpdatedAt: now.Add(time.Second),
	}

	doc := toSessionDoc(session)
	assert.Equal(t, "a1", doc.AssetID)
	require.Len(t, doc.History, 2)
	assert.Equal(t, "q2", doc.History[1].UserMessage)

	assert.Equal(t, session, fromSessionDoc("s1", doc))
}

func TestToSessionDoc_EmptyHistoryIsArray(t *testing.T) {
	doc := toSessionDoc(&core.Session{ID: "s1", AssetID: "a1"})
	assert.NotNil(t, doc.History)
	assert.Empty(t, doc.History)
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, translateError("op", status.Error(codes.NotFound, "gone")), storage.ErrNotFound)
	assert.ErrorIs(t, translateError("op", status.Error(codes.AlreadyExists, "dup")), storage.ErrDuplicateKey)

	other := errors.New("boom")
	err := translateError("op", other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}

func TestNewStore_RequiresProject(t *testing.T) {
	_, err := NewStore(context.Background(), "", "")
	assert.Error(t, err)
}

// TestStore_Emulator runs against a local Firestore emulator.
func TestStore_Emulator(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, "ragchat-test", "")
	require.NoError(t, err)
	defer s.Close()

	sessionID := core.SessionID(uuid.NewString())
	_, err = s.CreateSession(ctx, &core.Session{ID: sessionID, AssetID: "a1"})
	require.NoError(t, err)

	_, err = s.CreateSession(ctx, &core.Session{ID: sessionID, AssetID: "a1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = s.AppendExchange(ctx, sessionID, core.Exchange{UserMessage: "q", AgentResponse: "a"})
	require.NoError(t, err)

	got, err := s.GetSession(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	assert.Equal(t, "a", got.History[0].AgentResponse)

	_, err = s.GetSession(ctx, core.SessionID(uuid.NewString()))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assetID := core.AssetID(uuid.NewString())
	_, err = s.CreateAsset(ctx, &core.Asset{ID: assetID, FileName: "f.txt", FileType: core.FileTypeTXT, ChunkCount: 1})
	require.NoError(t, err)
	asset, err := s.GetAsset(ctx, assetID)
	require.NoError(t, err)
	assert.Equal(t, "f.txt", asset.FileName)
}
