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

package core

import "errors"

// Error kinds surfaced by ingestion and chat operations. Adapters wrap their
// underlying failures in one of these so callers can classify with errors.Is.
var (
	// ErrUnsupportedFileType indicates no loader is registered for the file type.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrUnreadableFile indicates a loader could not open or parse the file.
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrEmbeddingService indicates the embedding capability failed.
	ErrEmbeddingService = errors.New("embedding service failure")

	// ErrIndexUnavailable indicates the vector index failed.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGeneration indicates the text generation capability failed.
	ErrGeneration = errors.New("generation failure")

	// ErrSessionNotFound indicates the session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidAsset indicates the asset id does not name an ingested asset.
	ErrInvalidAsset = errors.New("invalid asset")

	// ErrRateLimited indicates the client exceeded its request budget.
	ErrRateLimited = errors.New("too many requests")
)

// Validation errors
var (
	// ErrEmptyAssetID indicates an asset id was missing.
	ErrEmptyAssetID = errors.New("asset id cannot be empty")

	// ErrEmptySessionID indicates a session id was missing.
	ErrEmptySessionID = errors.New("session id cannot be empty")

	// ErrEmptyQuery indicates the user query was blank.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidChunking indicates chunk size and overlap are inconsistent.
	ErrInvalidChunking = errors.New("chunk size must be greater than overlap and overlap must not be negative")

	// ErrInvalidExchange indicates an Exchange failed validation.
	ErrInvalidExchange = errors.New("invalid exchange")
)
