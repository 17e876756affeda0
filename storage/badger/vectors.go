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
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// VectorIndex implements storage.VectorIndex on top of BadgerDB with an
// exhaustive cosine scan. Keys are grouped by namespace and asset, so a query
// only touches the vectors of the filtered asset.
type VectorIndex struct {
	backend *Backend
}

var (
	_ storage.VectorIndex   = (*VectorIndex)(nil)
	_ storage.VectorScanner = (*VectorIndex)(nil)
)

// NewVectorIndex creates a new VectorIndex.
func NewVectorIndex(backend *Backend) *VectorIndex {
	return &VectorIndex{backend: backend}
}

func (v *VectorIndex) Close() error {
	return nil
}

// Upsert writes records in a single transaction.
func (v *VectorIndex) Upsert(ctx context.Context, namespace string, records []core.VectorRecord) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	err := v.backend.Update(func(tx *badger.Txn) error {
		for i := range records {
			record := &records[i]
			if err := core.ValidateAssetID(record.Chunk.AssetID); err != nil {
				return err
			}
			key := makeVectorKey(namespace, record.Chunk.AssetID, record.ID)
			if err := tx.Set(key, storage.MarshalVectorRecord(record)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return nil
}

// Query scans the filtered asset's vectors and returns the k most similar.
func (v *VectorIndex) Query(ctx context.Context, namespace string, vector []float32, k int, filter storage.Filter) ([]core.ScoredChunk, error) {
	if err := storage.ValidateQuery(k, filter); err != nil {
		return nil, err
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}

	var results []core.ScoredChunk
	err := v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeAssetVectorPrefix(namespace, filter.AssetID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			// The key prefix already scopes by asset; the payload check keeps
			// an asset id that is a prefix of another from leaking.
			if record.Chunk.AssetID != filter.AssetID || len(record.Vector) == 0 {
				continue
			}
			results = append(results, core.ScoredChunk{
				Chunk: record.Chunk,
				Score: cosineSimilarity(vector, record.Vector),
			})
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}

	// Sort by similarity descending, then by chunk order for stable output
	slices.SortFunc(results, func(a, b core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return a.Chunk.Index - b.Chunk.Index
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ScanVectors loads every record in namespace and hands them to fn in batches.
func (v *VectorIndex) ScanVectors(ctx context.Context, namespace string, batchSize int, fn func([]core.VectorRecord) error) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var records []core.VectorRecord
	err := v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeNamespacePrefix(namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalVectorRecord(val)
				if err != nil {
					return err
				}
				records = append(records, *record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}

	for i := 0; i < len(records); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(i+batchSize, len(records))
		if err := fn(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// CountVectors counts keys in namespace without decoding values.
func (v *VectorIndex) CountVectors(ctx context.Context, namespace string) (int, error) {
	if err := validateNamespace(namespace); err != nil {
		return 0, err
	}
	count := 0
	err := v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeNamespacePrefix(namespace)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return count, nil
}

// Namespaces are embedded in keys and must not contain the separator.
func validateNamespace(namespace string) error {
	if namespace == "" || strings.Contains(namespace, ":") {
		return fmt.Errorf("%w: namespace %q", storage.ErrInvalidQuery, namespace)
	}
	return nil
}

// cosineSimilarity calculates the cosine of the angle between two vectors.
// Vectors of different length are compared over their common prefix.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
