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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/ragchat/ai"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// Namespace is the index namespace to re-embed
	Namespace string

	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Namespace:      "ns1",
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder re-embeds every record of a source index into a target index.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RecordIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder. A nil target writes back to the
// source. progress receives human-readable output (typically os.Stderr).
func NewReembedder(source storage.VectorScanner, target storage.VectorIndex, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if source == nil {
		return nil, ErrScannerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if target == nil {
		idx, ok := source.(storage.VectorIndex)
		if !ok {
			return nil, fmt.Errorf("%w: no target index", ErrScannerRequired)
		}
		target = idx
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(target, config.Namespace, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewRecordIterator(source, config.Namespace, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}, nil
}

// Run executes the reembedding operation and returns the number of records
// processed. Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in namespace %q\n", r.config.Namespace)
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.config.BatchSize)
	r.logger.Info("reembedding", "namespace", r.config.Namespace, "chunks", total)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(records []core.VectorRecord) error {
		if err := r.processor.Process(ctx, records); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		processed += len(records)
		tracker.Add(len(records))
		return nil
	})
	if err != nil {
		return processed, err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	return processed, nil
}
