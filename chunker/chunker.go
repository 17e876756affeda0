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

// Package chunker splits document text into overlapping fixed-width windows.
//
// Windows are measured in characters (runes), not bytes, so a multi-byte
// UTF-8 sequence is never split. The split ignores sentence and token
// boundaries entirely, which keeps indexing reproducible.
package chunker

import (
	"github.com/poiesic/ragchat/core"
)

const (
	// DefaultChunkSize is the default number of characters per chunk.
	DefaultChunkSize = 800

	// DefaultOverlap is the default number of characters shared by consecutive chunks.
	DefaultOverlap = 50
)

// Split cuts text into windows of chunkSize characters whose starts advance
// by chunkSize-overlap. The final chunk may be shorter. Empty text yields an
// empty slice. Returns core.ErrInvalidChunking unless chunkSize > overlap >= 0.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if err := core.ValidateChunking(chunkSize, overlap); err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}

	runes := []rune(text)
	total := len(runes)
	step := chunkSize - overlap
	chunks := make([]string, 0, total/step+1)

	for start := 0; start < total; start += step {
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, string(runes[start:end]))
		// A window that reached the end already covers everything after it.
		if end == total {
			break
		}
	}
	return chunks, nil
}

// Chunker carries a validated size/overlap pair.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		c.size = size
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

// New creates a Chunker. Unset values fall back to the defaults; an
// inconsistent pair is an error rather than being silently corrected.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := core.ValidateChunking(c.size, c.overlap); err != nil {
		return nil, err
	}
	return c, nil
}

// Split splits text with the chunker's configuration.
func (c *Chunker) Split(text string) []string {
	// Configuration was validated in New.
	chunks, _ := Split(text, c.size, c.overlap)
	return chunks
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }
