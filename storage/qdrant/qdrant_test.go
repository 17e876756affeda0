package qdrant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	qc "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
)

// fakeClient records requests and replays canned responses.
type fakeClient struct {
	mu sync.Mutex

	exists  bool
	err     error
	hits    []*qc.ScoredPoint
	pages   [][]*qc.RetrievedPoint
	count   uint64
	closed  bool
	created []*qc.CreateCollection
	upserts []*qc.UpsertPoints
	queries []*qc.QueryPoints
	scrolls []*qc.ScrollPoints
	counts  []*qc.CountPoints
}

func (f *fakeClient) CollectionExists(ctx context.Context, name string) (bool, error) {
	return f.exists, f.err
}

func (f *fakeClient) CreateCollection(ctx context.Context, req *qc.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	return f.err
}

func (f *fakeClient) Upsert(ctx context.Context, req *qc.UpsertPoints) (*qc.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, req)
	return &qc.UpdateResult{}, f.err
}

func (f *fakeClient) Query(ctx context.Context, req *qc.QueryPoints) ([]*qc.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, req)
	return f.hits, f.err
}

func (f *fakeClient) ScrollAndOffset(ctx context.Context, req *qc.ScrollPoints) ([]*qc.RetrievedPoint, *qc.PointId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls = append(f.scrolls, req)
	if f.err != nil {
		return nil, nil, f.err
	}
	i := len(f.scrolls) - 1
	if i >= len(f.pages) {
		return nil, nil, nil
	}
	var next *qc.PointId
	if i+1 < len(f.pages) {
		next = f.pages[i+1][0].GetId()
	}
	return f.pages[i], next, nil
}

func (f *fakeClient) Count(ctx context.Context, req *qc.CountPoints) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, req)
	return f.count, f.err
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestIndex(fake *fakeClient) *Index {
	return newIndex(fake, Config{Collection: "docs"})
}

func payload(content, assetID string, index int64) map[string]*qc.Value {
	return map[string]*qc.Value{
		payloadContent: qc.NewValueString(content),
		payloadAssetID: qc.NewValueString(assetID),
		payloadIndex:   qc.NewValueInt(index),
	}
}

func retrieved(id uint64, vector []float32, content string, index int64) *qc.RetrievedPoint {
	return &qc.RetrievedPoint{
		Id:      qc.NewIDNum(id),
		Payload: payload(content, "x", index),
		Vectors: &qc.VectorsOutput{
			VectorsOptions: &qc.VectorsOutput_Vector{
				Vector: &qc.VectorOutput{Vector: &qc.VectorOutput_Dense{Dense: &qc.DenseVector{Data: vector}}},
			},
		},
	}
}

// matchKeys flattens a filter into key=keyword pairs.
func matchKeys(f *qc.Filter) map[string]string {
	out := map[string]string{}
	for _, c := range f.GetMust() {
		field := c.GetField()
		out[field.GetKey()] = field.GetMatch().GetKeyword()
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Collection: "docs"})
	assert.Error(t, err)

	_, err = New(Config{URL: "http://localhost:6334"})
	assert.Error(t, err)

	_, err = New(Config{URL: "ftp://localhost:6334", Collection: "docs"})
	assert.Error(t, err)

	idx, err := New(Config{URL: "http://localhost:6334", Collection: "docs"})
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, idx.timeout)
	assert.NoError(t, idx.Close())
}

func TestClientConfig(t *testing.T) {
	cases := []struct {
		url    string
		host   string
		port   int
		useTLS bool
	}{
		{"http://localhost:6334", "localhost", 6334, false},
		{"https://qdrant.example.com", "qdrant.example.com", defaultPort, true},
		{"qdrant:7000", "qdrant", 7000, false},
		{"grpcs://10.0.0.5:6334", "10.0.0.5", 6334, true},
	}
	for _, tc := range cases {
		t.Run(tc.url, func(t *testing.T) {
			cfg, err := clientConfig(Config{URL: tc.url, APIKey: "secret", Collection: "docs"})
			require.NoError(t, err)
			assert.Equal(t, tc.host, cfg.Host)
			assert.Equal(t, tc.port, cfg.Port)
			assert.Equal(t, tc.useTLS, cfg.UseTLS)
			assert.Equal(t, "secret", cfg.APIKey)
		})
	}

	_, err := clientConfig(Config{URL: "http://localhost:notaport"})
	assert.Error(t, err)
}

func TestMustMatch(t *testing.T) {
	f := mustMatch("ns1", "")
	assert.Equal(t, map[string]string{"namespace": "ns1"}, matchKeys(f))

	f = mustMatch("ns1", "asset-1")
	require.Len(t, f.GetMust(), 2)
	assert.Equal(t, map[string]string{"namespace": "ns1", "assetId": "asset-1"}, matchKeys(f))
	assert.Empty(t, f.GetShould())
	assert.Empty(t, f.GetMustNot())
}

func TestEnsureCollection(t *testing.T) {
	t.Run("creates missing collection", func(t *testing.T) {
		fake := &fakeClient{}
		idx := newTestIndex(fake)

		require.NoError(t, idx.EnsureCollection(t.Context(), 3))

		require.Len(t, fake.created, 1)
		req := fake.created[0]
		assert.Equal(t, "docs", req.GetCollectionName())
		params := req.GetVectorsConfig().GetParams()
		assert.Equal(t, uint64(3), params.GetSize())
		assert.Equal(t, qc.Distance_Cosine, params.GetDistance())
	})

	t.Run("existing collection is left alone", func(t *testing.T) {
		fake := &fakeClient{exists: true}
		idx := newTestIndex(fake)

		require.NoError(t, idx.EnsureCollection(t.Context(), 3))
		assert.Empty(t, fake.created)
	})

	t.Run("server failure", func(t *testing.T) {
		boom := errors.New("boom")
		idx := newTestIndex(&fakeClient{err: boom})

		err := idx.EnsureCollection(t.Context(), 3)
		assert.ErrorIs(t, err, core.ErrIndexUnavailable)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid dimension", func(t *testing.T) {
		fake := &fakeClient{}
		idx := newTestIndex(fake)

		assert.Error(t, idx.EnsureCollection(t.Context(), 0))
		assert.Empty(t, fake.created)
	})
}

func TestUpsert(t *testing.T) {
	fake := &fakeClient{}
	idx := newTestIndex(fake)

	chunk := core.Chunk{AssetID: "asset-1", Index: 2, Content: "hello"}
	rec := core.VectorRecord{ID: chunk.PointID(), Chunk: chunk, Vector: []float32{0.1, 0.2}}
	require.NoError(t, idx.Upsert(t.Context(), "ns1", []core.VectorRecord{rec}))

	require.Len(t, fake.upserts, 1)
	req := fake.upserts[0]
	assert.Equal(t, "docs", req.GetCollectionName())
	assert.True(t, req.GetWait())

	require.Len(t, req.GetPoints(), 1)
	p := req.GetPoints()[0]
	assert.Equal(t, uint64(rec.ID), p.GetId().GetNum())
	assert.Equal(t, []float32{0.1, 0.2}, p.GetVectors().GetVector().GetDense().GetData())
	assert.Equal(t, "hello", p.GetPayload()["content"].GetStringValue())
	assert.Equal(t, "asset-1", p.GetPayload()["assetId"].GetStringValue())
	assert.Equal(t, "ns1", p.GetPayload()["namespace"].GetStringValue())
	assert.Equal(t, int64(2), p.GetPayload()["index"].GetIntegerValue())
}

func TestUpsert_EmptyIsNoop(t *testing.T) {
	fake := &fakeClient{}
	idx := newTestIndex(fake)

	require.NoError(t, idx.Upsert(t.Context(), "ns1", nil))
	assert.Empty(t, fake.upserts)

	err := idx.Upsert(t.Context(), "", []core.VectorRecord{{ID: 1}})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	assert.Empty(t, fake.upserts)
}

func TestUpsert_Failure(t *testing.T) {
	idx := newTestIndex(&fakeClient{err: errors.New("unavailable")})

	err := idx.Upsert(t.Context(), "ns1", []core.VectorRecord{{ID: 1, Vector: []float32{1}}})
	assert.ErrorIs(t, err, core.ErrIndexUnavailable)
}

func TestQuery(t *testing.T) {
	fake := &fakeClient{hits: []*qc.ScoredPoint{
		{Id: qc.NewIDNum(1), Score: 0.9, Payload: payload("first", "asset-1", 0)},
		{Id: qc.NewIDNum(2), Score: 0.8, Payload: payload("stray", "asset-2", 0)},
		{Id: qc.NewIDNum(3), Score: 0.7, Payload: payload("second", "asset-1", 1)},
	}}
	idx := newTestIndex(fake)

	results, err := idx.Query(t.Context(), "ns1", []float32{1, 0}, 2, storage.Filter{AssetID: "asset-1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Chunk.Content)
	assert.Equal(t, "second", results[1].Chunk.Content)
	assert.Equal(t, 1, results[1].Chunk.Index)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)

	require.Len(t, fake.queries, 1)
	req := fake.queries[0]
	assert.Equal(t, "docs", req.GetCollectionName())
	assert.Equal(t, uint64(2), req.GetLimit())
	assert.Equal(t, []float32{1, 0}, req.GetQuery().GetNearest().GetDense().GetData())
	assert.Equal(t, map[string]string{"namespace": "ns1", "assetId": "asset-1"}, matchKeys(req.GetFilter()))
}

func TestQuery_RequiresFilter(t *testing.T) {
	fake := &fakeClient{}
	idx := newTestIndex(fake)

	_, err := idx.Query(t.Context(), "ns1", []float32{1}, 2, storage.Filter{})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	assert.Empty(t, fake.queries)
}

func TestQuery_Failure(t *testing.T) {
	idx := newTestIndex(&fakeClient{err: errors.New("unavailable")})

	_, err := idx.Query(t.Context(), "ns1", []float32{1}, 2, storage.Filter{AssetID: "a"})
	assert.ErrorIs(t, err, core.ErrIndexUnavailable)
}

func TestQuery_AppliesTimeout(t *testing.T) {
	fake := &fakeClient{}
	idx := newIndex(fake, Config{Collection: "docs", Timeout: time.Millisecond})
	assert.Equal(t, time.Millisecond, idx.timeout)

	_, err := idx.Query(t.Context(), "ns1", []float32{1}, 1, storage.Filter{AssetID: "a"})
	require.NoError(t, err)
}

func TestScanVectors_FollowsPages(t *testing.T) {
	fake := &fakeClient{pages: [][]*qc.RetrievedPoint{
		{retrieved(1, []float32{1, 0}, "a", 0)},
		{retrieved(2, []float32{0, 1}, "b", 1)},
	}}
	idx := newTestIndex(fake)

	var seen []core.VectorRecord
	err := idx.ScanVectors(t.Context(), "ns1", 1, func(batch []core.VectorRecord) error {
		seen = append(seen, batch...)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, core.ID(1), seen[0].ID)
	assert.Equal(t, "b", seen[1].Chunk.Content)
	assert.Equal(t, []float32{0, 1}, seen[1].Vector)

	require.Len(t, fake.scrolls, 2)
	assert.Nil(t, fake.scrolls[0].GetOffset())
	assert.Equal(t, uint64(2), fake.scrolls[1].GetOffset().GetNum())
	assert.Equal(t, uint32(1), fake.scrolls[0].GetLimit())
	assert.Equal(t, map[string]string{"namespace": "ns1"}, matchKeys(fake.scrolls[0].GetFilter()))
}

func TestScanVectors_CallbackErrorStops(t *testing.T) {
	fake := &fakeClient{pages: [][]*qc.RetrievedPoint{
		{retrieved(1, []float32{1}, "a", 0)},
		{retrieved(2, []float32{1}, "b", 1)},
	}}
	idx := newTestIndex(fake)

	stop := errors.New("stop")
	err := idx.ScanVectors(t.Context(), "ns1", 1, func([]core.VectorRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Len(t, fake.scrolls, 1)
}

func TestCountVectors(t *testing.T) {
	fake := &fakeClient{count: 7}
	idx := newTestIndex(fake)

	n, err := idx.CountVectors(t.Context(), "ns1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.Len(t, fake.counts, 1)
	assert.True(t, fake.counts[0].GetExact())
	assert.Equal(t, map[string]string{"namespace": "ns1"}, matchKeys(fake.counts[0].GetFilter()))
}

func TestClose(t *testing.T) {
	fake := &fakeClient{}
	require.NoError(t, newTestIndex(fake).Close())
	assert.True(t, fake.closed)
}
