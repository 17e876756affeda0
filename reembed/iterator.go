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
	"context"

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator iterates over every vector record in a namespace in batches.
type RecordIterator struct {
	scanner   storage.VectorScanner
	namespace string
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records in each batch; non-positive means DefaultBatchSize
func NewRecordIterator(scanner storage.VectorScanner, namespace string, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &RecordIterator{
		scanner:   scanner,
		namespace: namespace,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch of records.
// Iteration stops on first error from fn or when all records are processed.
// Context cancellation is checked before every batch.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]core.VectorRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return it.scanner.ScanVectors(ctx, it.namespace, it.batchSize, func(batch []core.VectorRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(batch)
	})
}

// Count returns the number of records the iterator will visit.
func (it *RecordIterator) Count(ctx context.Context) (int, error) {
	return it.scanner.CountVectors(ctx, it.namespace)
}
