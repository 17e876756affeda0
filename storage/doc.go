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

// Package storage provides the storage abstraction layer for ragchat.
//
// This package defines the ports the ingestion pipeline and chat service
// depend on, decoupling them from any particular backend:
//
//   - SessionRepository: chat sessions and their ordered exchange history
//   - AssetRepository: records of successfully ingested documents
//   - VectorIndex: namespaced chunk embeddings with asset-filtered search
//   - VectorScanner: optional enumeration of an index, used for re-embedding
//
// # Backends
//
//   - storage/badger: embedded BadgerDB, implements all three ports
//   - storage/sqlite: SQLite via sqlx, sessions and assets
//   - storage/firestore: Google Cloud Firestore, sessions and assets
//   - storage/qdrant: Qdrant gRPC API, vector index
//
// Public constructors return interface types. Internal constructors may
// return concrete types since they're only used within the implementation
// package.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	sessions, err := badger.NewSessionRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All implementations must be thread-safe. AppendExchange in particular must
// be atomic per session: two concurrent appends both land, in some order.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
