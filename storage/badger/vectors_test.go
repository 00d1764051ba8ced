package badger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyforge/corpus/core"
)

func vectorRecord(owner string, docID uuid.UUID, position int, vector []float32) *core.VectorRecord {
	return &core.VectorRecord{
		Key:    core.VectorKey(docID, position),
		Vector: vector,
		Metadata: core.VectorMetadata{
			OwnerID:    owner,
			DocumentID: docID,
			Position:   position,
			SourceKind: core.SourceText,
			Content:    "chunk content",
		},
	}
}

func TestUpsertAndKeysByDocument(t *testing.T) {
	_, vectors := newTestStores(t)
	ctx := context.Background()
	docID := uuid.New()

	records := []*core.VectorRecord{
		vectorRecord("owner-1", docID, 0, []float32{1, 0}),
		vectorRecord("owner-1", docID, 1, []float32{0, 1}),
	}
	require.NoError(t, vectors.Upsert(ctx, records))

	keys, err := vectors.KeysByDocument(ctx, docID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{records[0].Key, records[1].Key}, keys)
}

func TestUpsertIsIdempotent(t *testing.T) {
	_, vectors := newTestStores(t)
	ctx := context.Background()
	docID := uuid.New()

	record := vectorRecord("owner-1", docID, 0, []float32{1, 0})
	require.NoError(t, vectors.Upsert(ctx, []*core.VectorRecord{record}))

	record.Vector = []float32{0, 1}
	require.NoError(t, vectors.Upsert(ctx, []*core.VectorRecord{record}))

	keys, err := vectors.KeysByDocument(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, keys, 1, "same key must overwrite, not duplicate")

	results, err := vectors.Search(ctx, "owner-1", []float32{0, 1}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestDeleteByDocument(t *testing.T) {
	_, vectors := newTestStores(t)
	ctx := context.Background()
	keep := uuid.New()
	drop := uuid.New()

	require.NoError(t, vectors.Upsert(ctx, []*core.VectorRecord{
		vectorRecord("owner-1", keep, 0, []float32{1, 0}),
		vectorRecord("owner-1", drop, 0, []float32{0, 1}),
		vectorRecord("owner-1", drop, 1, []float32{1, 1}),
	}))

	require.NoError(t, vectors.DeleteByDocument(ctx, drop))

	keys, err := vectors.KeysByDocument(ctx, drop)
	require.NoError(t, err)
	assert.Empty(t, keys)

	keys, err = vectors.KeysByDocument(ctx, keep)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	// Deleting an already-deleted document is a no-op.
	assert.NoError(t, vectors.DeleteByDocument(ctx, drop))
}

func TestSearchRanksAndFilters(t *testing.T) {
	_, vectors := newTestStores(t)
	ctx := context.Background()
	docA := uuid.New()
	docB := uuid.New()

	require.NoError(t, vectors.Upsert(ctx, []*core.VectorRecord{
		vectorRecord("owner-1", docA, 0, []float32{1, 0}),
		vectorRecord("owner-1", docA, 1, []float32{0.9, 0.1}),
		vectorRecord("owner-1", docA, 2, []float32{0, 1}),
		vectorRecord("owner-2", docB, 0, []float32{1, 0}),
	}))

	results, err := vectors.Search(ctx, "owner-1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, core.VectorKey(docA, 0), results[0].Key)
	assert.Equal(t, core.VectorKey(docA, 1), results[1].Key)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.Equal(t, "owner-1", r.Metadata.OwnerID)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	_, vectors := newTestStores(t)

	results, err := vectors.Search(context.Background(), "owner-1", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
