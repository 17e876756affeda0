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

package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/ragchat/ai/mock"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
	"github.com/poiesic/ragchat/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNamespace = "ns1"

func setupIndex(t *testing.T, assetID core.AssetID, n int) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	records := make([]core.VectorRecord, n)
	for i := range records {
		chunk := core.Chunk{AssetID: assetID, Index: i, Content: fmt.Sprintf("chunk %d", i)}
		records[i] = core.VectorRecord{
			ID:     chunk.PointID(),
			Chunk:  chunk,
			Vector: []float32{1, 0, 0, 0},
		}
	}
	require.NoError(t, repos.Index.Upsert(t.Context(), testNamespace, records))
	return repos
}

func testConfig(batchSize int) *Config {
	cfg := DefaultConfig()
	cfg.BatchSize = batchSize
	cfg.ReportInterval = 1
	cfg.RetryDelay = time.Millisecond
	return cfg
}

func TestNewReembedder_Validation(t *testing.T) {
	repos := setupIndex(t, "a1", 0)

	_, err := NewReembedder(nil, nil, mock.NewMockEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrScannerRequired)

	_, err = NewReembedder(repos.Index, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(repos.Index, nil, mock.NewMockEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, r.config.BatchSize)
}

func TestReembedder_EmptyNamespace(t *testing.T) {
	repos := setupIndex(t, "a1", 0)
	embedder := mock.NewMockEmbedder()
	var out bytes.Buffer

	r, err := NewReembedder(repos.Index, nil, embedder, testConfig(10), &out)
	require.NoError(t, err)

	n, err := r.Run(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
	assert.Contains(t, out.String(), "No chunks found")
}

func TestReembedder_ReembedsInPlace(t *testing.T) {
	repos := setupIndex(t, "a1", 7)
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4
	var out bytes.Buffer

	r, err := NewReembedder(repos.Index, nil, embedder, testConfig(3), &out)
	require.NoError(t, err)

	n, err := r.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 3, embedder.CallCount(), "7 records in batches of 3")
	assert.Contains(t, out.String(), "Reembedding complete. Processed 7 chunks")

	count, err := repos.Index.CountVectors(t.Context(), testNamespace)
	require.NoError(t, err)
	assert.Equal(t, 7, count, "upserts must overwrite, not duplicate")

	err = repos.Index.ScanVectors(t.Context(), testNamespace, 10, func(records []core.VectorRecord) error {
		for _, record := range records {
			assert.InDeltaSlice(t, mock.Vector(record.Chunk.Content, 4), record.Vector, 1e-6)
			assert.Equal(t, record.Chunk.PointID(), record.ID)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestReembedder_QueryFindsReembeddedChunk(t *testing.T) {
	repos := setupIndex(t, "a1", 4)
	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 4

	r, err := NewReembedder(repos.Index, nil, embedder, testConfig(2), nil)
	require.NoError(t, err)
	_, err = r.Run(t.Context())
	require.NoError(t, err)

	hits, err := repos.Index.Query(t.Context(), testNamespace, mock.Vector("chunk 2", 4), 1, storage.Filter{AssetID: "a1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk 2", hits[0].Chunk.Content)
}

func TestReembedder_CopiesToSeparateTarget(t *testing.T) {
	source := setupIndex(t, "a1", 5)
	target := setupIndex(t, "a1", 0)
	embedder := mock.NewMockEmbedder()

	r, err := NewReembedder(source.Index, target.Index, embedder, testConfig(2), nil)
	require.NoError(t, err)

	n, err := r.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	count, err := target.Index.CountVectors(t.Context(), testNamespace)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestReembedder_RetriesTransientEmbeddingFailures(t *testing.T) {
	repos := setupIndex(t, "a1", 2)
	embedder := mock.NewMockEmbedder()
	failures := 2
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if failures > 0 {
			failures--
			return nil, core.ErrEmbeddingService
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, 4)
		}
		return out, nil
	}

	r, err := NewReembedder(repos.Index, nil, embedder, testConfig(10), nil)
	require.NoError(t, err)

	n, err := r.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, embedder.CallCount())
}

func TestReembedder_StopsOnPersistentFailure(t *testing.T) {
	repos := setupIndex(t, "a1", 4)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("model offline")
	}

	cfg := testConfig(2)
	cfg.MaxRetries = 2
	r, err := NewReembedder(repos.Index, nil, embedder, cfg, nil)
	require.NoError(t, err)

	n, err := r.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
	assert.Zero(t, n)
	assert.Equal(t, 2, embedder.CallCount(), "first batch retried, second never attempted")
}

func TestReembedder_CountMismatch(t *testing.T) {
	repos := setupIndex(t, "a1", 3)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0, 0}}, nil
	}

	r, err := NewReembedder(repos.Index, nil, embedder, testConfig(10), nil)
	require.NoError(t, err)

	_, err = r.Run(t.Context())
	assert.ErrorIs(t, err, core.ErrEmbeddingService)
}

func TestReembedder_CancelledContext(t *testing.T) {
	repos := setupIndex(t, "a1", 3)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r, err := NewReembedder(repos.Index, nil, mock.NewMockEmbedder(), testConfig(10), nil)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
