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

import (
	"fmt"
	"strings"
	"time"
)

// ValidateAssetID rejects empty or whitespace-only asset ids.
func ValidateAssetID(id AssetID) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrEmptyAssetID
	}
	return nil
}

// ValidateSessionID rejects empty or whitespace-only session ids.
func ValidateSessionID(id SessionID) error {
	if strings.TrimSpace(string(id)) == "" {
		return ErrEmptySessionID
	}
	return nil
}

// ValidateQuery rejects blank user queries.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// ValidateExchange validates an Exchange before it is appended to a session.
//
// Validation rules:
//   - UserMessage must not be blank
//   - CreatedAt must not be in the future
//
// AgentResponse may be empty: a generator that completes without emitting any
// fragment still produces a valid exchange.
func ValidateExchange(ex *Exchange) error {
	if ex == nil {
		return fmt.Errorf("%w: exchange is nil", ErrInvalidExchange)
	}
	if err := ValidateQuery(ex.UserMessage); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExchange, err)
	}
	if !IsValidTimestamp(ex.CreatedAt) {
		return fmt.Errorf("%w: timestamp cannot be in the future", ErrInvalidExchange)
	}
	return nil
}

// ValidateChunking checks that a chunk size and overlap describe a window
// that always advances.
func ValidateChunking(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
