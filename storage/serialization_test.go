package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyforge/corpus/core"
)

func TestDocumentRoundTrip(t *testing.T) {
	doc := &core.Document{
		ID:         uuid.New(),
		OwnerID:    "owner-1",
		Title:      "Round Trip",
		SourceKind: core.SourceURL,
		SourceURL:  "https://example.com/article",
		Status:     core.StatusReady,
		ChunkCount: 7,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	got, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestDocumentRoundTripTerminal(t *testing.T) {
	doc := &core.Document{
		ID:           uuid.New(),
		OwnerID:      "owner-1",
		SourceKind:   core.SourceText,
		Status:       core.StatusFailed,
		ErrorMessage: "embedding service unavailable",
		CreatedAt:    time.Now().UTC().Truncate(time.Microsecond),
		ProcessedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	got, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.False(t, got.ProcessedAt.IsZero())
}

func TestChunkRoundTrip(t *testing.T) {
	docID := uuid.New()
	chunk := &core.Chunk{
		ID:         uuid.New(),
		DocumentID: docID,
		Position:   2,
		Content:    "chunk body with accents: café",
		TokenCount: 8,
		VectorKey:  core.VectorKey(docID, 2),
	}

	data, err := MarshalChunk(chunk)
	require.NoError(t, err)

	got, err := UnmarshalChunk(data)
	require.NoError(t, err)
	assert.Equal(t, chunk, got)
}

func TestVectorRecordRoundTrip(t *testing.T) {
	record := &core.VectorRecord{
		Key:    "abcd1234",
		Vector: []float32{0.25, -0.5, 1},
		Metadata: core.VectorMetadata{
			OwnerID:    "owner-1",
			DocumentID: uuid.New(),
			Position:   3,
			SourceKind: core.SourcePDF,
			Content:    "chunk text",
		},
	}

	data, err := MarshalVectorRecord(record)
	require.NoError(t, err)

	got, err := UnmarshalVectorRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, got)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := UnmarshalDocument([]byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalChunk([]byte{0xff})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestUnmarshalTruncated(t *testing.T) {
	doc := &core.Document{
		ID:         uuid.New(),
		OwnerID:    "owner-1",
		Title:      "Truncation",
		SourceKind: core.SourceText,
		Status:     core.StatusReady,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	_, err = UnmarshalDocument(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
