package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusUploading, StatusProcessing, true},
		{StatusUploading, StatusFailed, true},
		{StatusUploading, StatusReady, false},
		{StatusProcessing, StatusReady, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusUploading, false},
		{StatusReady, StatusProcessing, true}, // re-ingestion
		{StatusFailed, StatusProcessing, true},
		{StatusReady, StatusFailed, false},
		{StatusReady, StatusDeleting, true},
		{StatusFailed, StatusDeleting, true},
		{StatusDeleting, StatusProcessing, false},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, ValidTransition(tc.from, tc.to))
		})
	}
}

func TestSourceKindValid(t *testing.T) {
	assert.True(t, SourcePDF.Valid())
	assert.True(t, SourceURL.Valid())
	assert.True(t, SourceText.Valid())
	assert.False(t, SourceKind("docx").Valid())
	assert.False(t, SourceKind("").Valid())
}

func TestVectorKeyDeterministic(t *testing.T) {
	docID := uuid.New()

	first := VectorKey(docID, 0)
	second := VectorKey(docID, 0)
	assert.Equal(t, first, second, "same inputs must produce the same key")

	assert.NotEqual(t, first, VectorKey(docID, 1), "positions must not collide")
	assert.NotEqual(t, first, VectorKey(uuid.New(), 0), "documents must not collide")

	require.Len(t, first, 32, "hex-encoded 128-bit key")
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(KindExternal, "embedding request failed", base)

	assert.Equal(t, KindExternal, KindOf(err))
	assert.True(t, IsKind(err, KindExternal))
	assert.False(t, IsKind(err, KindValidation))
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("stage failed: %w", err)
	assert.Equal(t, KindExternal, KindOf(wrapped), "kind survives wrapping")

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "quota exceeded for owner u1", E(KindQuota, "quota exceeded for owner %s", "u1").Error())
}
