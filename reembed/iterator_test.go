package reembed

import (
	"testing"

	"github.com/poiesic/ragchat/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordIterator_Batches(t *testing.T) {
	repos := setupIndex(t, "a1", 5)
	it := NewRecordIterator(repos.Index, testNamespace, 2)

	var sizes []int
	seen := make(map[core.ID]bool)
	err := it.ForEach(t.Context(), func(records []core.VectorRecord) error {
		sizes = append(sizes, len(records))
		for _, record := range records {
			seen[record.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, seen, 5)

	count, err := it.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRecordIterator_DefaultBatchSize(t *testing.T) {
	repos := setupIndex(t, "a1", 0)
	it := NewRecordIterator(repos.Index, testNamespace, 0)
	assert.Equal(t, DefaultBatchSize, it.batchSize)
}

func TestRecordIterator_StopsOnError(t *testing.T) {
	repos := setupIndex(t, "a1", 5)
	it := NewRecordIterator(repos.Index, testNamespace, 1)

	calls := 0
	err := it.ForEach(t.Context(), func(records []core.VectorRecord) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
