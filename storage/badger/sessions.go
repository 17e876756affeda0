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

package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// SessionRepository implements storage.SessionRepository for BadgerDB.
type SessionRepository struct {
	backend *Backend
}

var _ storage.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(backend *Backend) (*SessionRepository, error) {
	return &SessionRepository{backend: backend}, nil
}

// Close is a no-op; the backend is owned by the caller.
func (r *SessionRepository) Close() error {
	return nil
}

// CreateSession stores a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, session *core.Session) (*core.Session, error) {
	if err := core.ValidateSessionID(session.ID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeSessionKey(session.ID)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return tx.Set(key, storage.MarshalSession(session))
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id core.SessionID) (*core.Session, error) {
	var result *core.Session
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readSession(tx, makeSessionKey(id))
		return err
	})
	return result, err
}

// AppendExchange appends to the session history inside one update
// transaction. Badger's optimistic concurrency detects a concurrent append to
// the same key and Update replays the read-append-write.
func (r *SessionRepository) AppendExchange(ctx context.Context, id core.SessionID, exchange core.Exchange) (*core.Session, error) {
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now().UTC()
	}

	var result *core.Session
	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeSessionKey(id)
		session, err := readSession(tx, key)
		if err != nil {
			return err
		}
		session.History = append(session.History, exchange)
		session.UpdatedAt = time.Now().UTC()
		if err := tx.Set(key, storage.MarshalSession(session)); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func readSession(tx *badger.Txn, key []byte) (*core.Session, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var session *core.Session
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		session, unmarshalErr = storage.UnmarshalSession(val)
		return unmarshalErr
	})
	return session, err
}
