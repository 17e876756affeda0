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

// Package qdrant implements storage.VectorIndex over Qdrant's gRPC API.
//
// All namespaces share one collection. Every point carries its namespace and
// asset id in the payload, and every query filters on both.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	qc "github.com/qdrant/go-client/qdrant"

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// Payload keys
const (
	payloadContent   = "content"
	payloadAssetID   = "assetId"
	payloadNamespace = "namespace"
	payloadIndex     = "index"
)

const (
	defaultPort    = 6334
	defaultTimeout = 15 * time.Second
)

// Config describes how to reach Qdrant. URL names the gRPC endpoint,
// e.g. http://localhost:6334; an https scheme turns on TLS.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// pointsAPI is the subset of *qc.Client the index uses.
type pointsAPI interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qc.CreateCollection) error
	Upsert(ctx context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error)
	Query(ctx context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error)
	ScrollAndOffset(ctx context.Context, req *qc.ScrollPoints) ([]*qc.RetrievedPoint, *qc.PointId, error)
	Count(ctx context.Context, req *qc.CountPoints) (uint64, error)
	Close() error
}

var _ pointsAPI = (*qc.Client)(nil)

// Index stores vectors in a single Qdrant collection.
// It assumes cosine distance and creates the collection if missing.
type Index struct {
	client     pointsAPI
	collection string
	timeout    time.Duration
	logger     *slog.Logger
}

var (
	_ storage.VectorIndex   = (*Index)(nil)
	_ storage.VectorScanner = (*Index)(nil)
)

// New creates a Qdrant index client. The connection is established lazily
// on the first call.
func New(cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant: URL is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection is required")
	}
	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := qc.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return newIndex(client, cfg), nil
}

func newIndex(client pointsAPI, cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Index{
		client:     client,
		collection: cfg.Collection,
		timeout:    timeout,
		logger:     slog.Default().With("component", "qdrant-index"),
	}
}

// clientConfig turns a URL into the host, port and TLS settings the gRPC
// client wants. A bare host:port is accepted as plain text.
func clientConfig(cfg Config) (*qc.Config, error) {
	raw := cfg.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid URL %q: %w", cfg.URL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("qdrant: invalid URL %q: missing host", cfg.URL)
	}
	var useTLS bool
	switch u.Scheme {
	case "http", "grpc":
	case "https", "grpcs":
		useTLS = true
	default:
		return nil, fmt.Errorf("qdrant: unsupported scheme %q", u.Scheme)
	}
	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid port %q: %w", p, err)
		}
	}
	return &qc.Config{
		Host:                   u.Hostname(),
		Port:                   port,
		APIKey:                 cfg.APIKey,
		UseTLS:                 useTLS,
		SkipCompatibilityCheck: true,
	}, nil
}

// Close releases the gRPC connections.
func (q *Index) Close() error {
	return q.client.Close()
}

// EnsureCollection creates the collection with the given vector dimension
// unless it already exists.
func (q *Index) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant: invalid dimension")
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(dimension),
			Distance: qc.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	q.logger.Info("created collection", "collection", q.collection, "dimension", dimension)
	return nil
}

// Upsert writes points and waits for them to be indexed.
func (q *Index) Upsert(ctx context.Context, namespace string, records []core.VectorRecord) error {
	if namespace == "" {
		return fmt.Errorf("%w: empty namespace", storage.ErrInvalidQuery)
	}
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	_, err := q.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qc.PtrOf(true),
		Points:         toPoints(namespace, records),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return nil
}

// Query searches the collection restricted to namespace and filter.AssetID.
func (q *Index) Query(ctx context.Context, namespace string, vector []float32, k int, filter storage.Filter) ([]core.ScoredChunk, error) {
	if err := storage.ValidateQuery(k, filter); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	hits, err := q.client.Query(ctx, &qc.QueryPoints{
		CollectionName: q.collection,
		Query:          qc.NewQueryDense(vector),
		Filter:         mustMatch(namespace, filter.AssetID),
		Limit:          qc.PtrOf(uint64(k)),
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}

	results := make([]core.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		chunk := chunkFromPayload(h.GetPayload())
		// The server filter is authoritative; this guards a misconfigured proxy.
		if chunk.AssetID != filter.AssetID {
			continue
		}
		results = append(results, core.ScoredChunk{Chunk: chunk, Score: h.GetScore()})
	}
	return results, nil
}

// ScanVectors pages through namespace with the scroll API.
func (q *Index) ScanVectors(ctx context.Context, namespace string, batchSize int, fn func([]core.VectorRecord) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	var offset *qc.PointId
	for {
		page, next, err := q.scroll(ctx, namespace, uint32(batchSize), offset)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
		}
		if len(page) > 0 {
			batch := make([]core.VectorRecord, len(page))
			for i, p := range page {
				batch[i] = core.VectorRecord{
					ID:     core.ID(p.GetId().GetNum()),
					Chunk:  chunkFromPayload(p.GetPayload()),
					Vector: p.GetVectors().GetVector().GetDenseVector().GetData(),
				}
			}
			if err := fn(batch); err != nil {
				return err
			}
		}
		if next == nil {
			return nil
		}
		offset = next
	}
}

func (q *Index) scroll(ctx context.Context, namespace string, limit uint32, offset *qc.PointId) ([]*qc.RetrievedPoint, *qc.PointId, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.client.ScrollAndOffset(ctx, &qc.ScrollPoints{
		CollectionName: q.collection,
		Filter:         mustMatch(namespace, ""),
		Offset:         offset,
		Limit:          qc.PtrOf(limit),
		WithPayload:    qc.NewWithPayload(true),
		WithVectors:    qc.NewWithVectors(true),
	})
}

// CountVectors returns the exact number of points in namespace.
func (q *Index) CountVectors(ctx context.Context, namespace string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	n, err := q.client.Count(ctx, &qc.CountPoints{
		CollectionName: q.collection,
		Filter:         mustMatch(namespace, ""),
		Exact:          qc.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrIndexUnavailable, err)
	}
	return int(n), nil
}

// mustMatch scopes a request to namespace and, when set, a single asset.
func mustMatch(namespace string, assetID core.AssetID) *qc.Filter {
	must := []*qc.Condition{qc.NewMatch(payloadNamespace, namespace)}
	if assetID != "" {
		must = append(must, qc.NewMatch(payloadAssetID, string(assetID)))
	}
	return &qc.Filter{Must: must}
}

func toPoints(namespace string, records []core.VectorRecord) []*qc.PointStruct {
	points := make([]*qc.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qc.PointStruct{
			Id:      qc.NewIDNum(uint64(r.ID)),
			Vectors: qc.NewVectorsDense(r.Vector),
			Payload: map[string]*qc.Value{
				payloadContent:   qc.NewValueString(r.Chunk.Content),
				payloadAssetID:   qc.NewValueString(string(r.Chunk.AssetID)),
				payloadNamespace: qc.NewValueString(namespace),
				payloadIndex:     qc.NewValueInt(int64(r.Chunk.Index)),
			},
		}
	}
	return points
}

func chunkFromPayload(payload map[string]*qc.Value) core.Chunk {
	return core.Chunk{
		AssetID: core.AssetID(payload[payloadAssetID].GetStringValue()),
		Content: payload[payloadContent].GetStringValue(),
		Index:   int(payload[payloadIndex].GetIntegerValue()),
	}
}
