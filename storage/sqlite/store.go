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

// Package sqlite implements the session and asset repositories on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// Store holds one SQLite connection and implements both
// storage.SessionRepository and storage.AssetRepository.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var (
	_ storage.SessionRepository = (*Store)(nil)
	_ storage.AssetRepository   = (*Store)(nil)
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		file_type TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exchanges (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		user_message TEXT NOT NULL,
		agent_response TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	)`,
}

type assetRow struct {
	ID         string `db:"id"`
	FileName   string `db:"file_name"`
	FileType   string `db:"file_type"`
	ChunkCount int    `db:"chunk_count"`
	CreatedAt  int64  `db:"created_at"`
}

type sessionRow struct {
	ID        string `db:"id"`
	AssetID   string `db:"asset_id"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

type exchangeRow struct {
	UserMessage   string `db:"user_message"`
	AgentResponse string `db:"agent_response"`
	CreatedAt     int64  `db:"created_at"`
}

// Open connects to the database at path (":memory:" for a private in-memory
// database) and creates the schema if needed.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: connect %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// pointing at one database.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		logger: slog.Default().With("component", "sqlite-store"),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			s.logger.Error("schema statement failed", "sql", stmt, "err", err)
			return fmt.Errorf("sqlite: create schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAsset stores a new asset record.
func (s *Store) CreateAsset(ctx context.Context, asset *core.Asset) (*core.Asset, error) {
	if err := core.ValidateAssetID(asset.ID); err != nil {
		return nil, err
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, file_name, file_type, chunk_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(asset.ID), asset.FileName, string(asset.FileType), asset.ChunkCount, asset.CreatedAt.UnixMicro())
	if err != nil {
		return nil, translateError(err)
	}
	return asset, nil
}

// GetAsset retrieves an asset by ID.
func (s *Store) GetAsset(ctx context.Context, id core.AssetID) (*core.Asset, error) {
	var row assetRow
	err := s.db.GetContext(ctx, &row, `SELECT id, file_name, file_type, chunk_count, created_at FROM assets WHERE id = ?`, string(id))
	if err != nil {
		return nil, translateError(err)
	}
	return &core.Asset{
		ID:         core.AssetID(row.ID),
		FileName:   row.FileName,
		FileType:   core.FileType(row.FileType),
		ChunkCount: row.ChunkCount,
		CreatedAt:  fromMicros(row.CreatedAt),
	}, nil
}

// CreateSession stores a new session.
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, asset_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		string(session.ID), string(session.AssetID), session.CreatedAt.UnixMicro(), session.UpdatedAt.UnixMicro())
	if err != nil {
		return nil, translateError(err)
	}
	return session, nil
}

// GetSession retrieves a session and its history in sequence order.
func (s *Store) GetSession(ctx context.Context, id core.SessionID) (*core.Session, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return loadSession(ctx, tx, id)
}

// AppendExchange inserts the exchange at the next sequence number and bumps
// the session's UpdatedAt in one transaction.
func (s *Store) AppendExchange(ctx context.Context, id core.SessionID, exchange core.Exchange) (*core.Session, error) {
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM sessions WHERE id = ?`, string(id)); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, storage.ErrNotFound
	}

	var next int
	if err := tx.GetContext(ctx, &next, `SELECT COALESCE(MAX(seq), -1) + 1 FROM exchanges WHERE session_id = ?`, string(id)); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, seq, user_message, agent_response, created_at) VALUES (?, ?, ?, ?, ?)`,
		string(id), next, exchange.UserMessage, exchange.AgentResponse, exchange.CreatedAt.UnixMicro()); err != nil {
		return nil, translateError(err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC().UnixMicro(), string(id)); err != nil {
		return nil, err
	}

	session, err := loadSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

func loadSession(ctx context.Context, tx *sqlx.Tx, id core.SessionID) (*core.Session, error) {
	var row sessionRow
	if err := tx.GetContext(ctx, &row, `SELECT id, asset_id, created_at, updated_at FROM sessions WHERE id = ?`, string(id)); err != nil {
		return nil, translateError(err)
	}
	var rows []exchangeRow
	if err := tx.SelectContext(ctx, &rows,
		`SELECT user_message, agent_response, created_at FROM exchanges WHERE session_id = ? ORDER BY seq`, string(id)); err != nil {
		return nil, err
	}

	session := &core.Session{
		ID:        core.SessionID(row.ID),
		AssetID:   core.AssetID(row.AssetID),
		CreatedAt: fromMicros(row.CreatedAt),
		UpdatedAt: fromMicros(row.UpdatedAt),
	}
	for _, r := range rows {
		session.History = append(session.History, core.Exchange{
			UserMessage:   r.UserMessage,
			AgentResponse: r.AgentResponse,
			CreatedAt:     fromMicros(r.CreatedAt),
		})
	}
	return session, nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// translateError maps driver errors onto storage sentinels.
func translateError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %w", storage.ErrDuplicateKey, err)
	}
	return err
}
