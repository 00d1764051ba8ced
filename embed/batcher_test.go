package embed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyforge/corpus/ai/mock"
	"github.com/studyforge/corpus/core"
)

type fakeLimiter struct {
	waits int
	err   error
}

func (f *fakeLimiter) Wait(ctx context.Context) error {
	f.waits++
	return f.err
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "chunk " + strconv.Itoa(i)
	}
	return out
}

func TestEmbedValidation(t *testing.T) {
	b := New(mock.NewMockEmbedder())

	t.Run("empty batch", func(t *testing.T) {
		_, err := b.Embed(context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmptyBatch)
		assert.True(t, core.IsKind(err, core.KindValidation))
	})

	t.Run("oversized batch", func(t *testing.T) {
		_, err := b.Embed(context.Background(), texts(DefaultBatchSize+1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
		assert.True(t, core.IsKind(err, core.KindValidation))
	})
}

func TestEmbedReturnsVectors(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	b := New(embedder)

	vectors, err := b.Embed(context.Background(), texts(3))
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], mock.DefaultDimension)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestEmbedAllPartitionsAndPaces(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	limiter := &fakeLimiter{}
	b := New(embedder, WithLimiter(limiter))

	var progress []int
	vectors, err := b.EmbedAll(context.Background(), texts(40), func(done, total int) {
		assert.Equal(t, 40, total)
		progress = append(progress, done)
	})
	require.NoError(t, err)
	assert.Len(t, vectors, 40)

	batches := embedder.Batches()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 16)
	assert.Len(t, batches[1], 16)
	assert.Len(t, batches[2], 8)

	// One Wait per provider call, including the first; the limiter's burst
	// token makes the first immediate.
	assert.Equal(t, 3, limiter.waits)
	assert.Equal(t, []int{16, 32, 40}, progress)
}

func TestEmbedAllEmptyInput(t *testing.T) {
	b := New(mock.NewMockEmbedder())
	_, err := b.EmbedAll(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestEmbedAllLimiterError(t *testing.T) {
	limiter := &fakeLimiter{err: context.Canceled}
	b := New(mock.NewMockEmbedder(), WithLimiter(limiter))

	_, err := b.EmbedAll(context.Background(), texts(4), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedRetriesTransientFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	attempts := 0
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("connection refused")
		}
		return make([][]float32, len(in)), nil
	}

	b := New(embedder, WithBaseDelay(time.Millisecond), WithMaxElapsed(time.Second))
	vectors, err := b.Embed(context.Background(), texts(2))
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 3, attempts)
}

func TestEmbedPermanentFailureNotRetried(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	attempts := 0
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		attempts++
		return nil, fmt.Errorf("API returned unexpected status code: 400 invalid model")
	}

	b := New(embedder, WithBaseDelay(time.Millisecond))
	_, err := b.Embed(context.Background(), texts(2))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
	assert.Equal(t, 1, attempts)
}

func TestEmbedRetryCeiling(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		return nil, errors.New("status code: 503")
	}

	b := New(embedder, WithBaseDelay(2*time.Millisecond), WithMaxElapsed(10*time.Millisecond))
	_, err := b.Embed(context.Background(), texts(1))
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindExternal))
}

func TestEmbedRespectsCancellation(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	ctx, cancel := context.WithCancel(context.Background())
	embedder.EmbedTextsFunc = func(ctx context.Context, in []string) ([][]float32, error) {
		cancel()
		return nil, errors.New("connection reset")
	}

	b := New(embedder, WithBaseDelay(time.Millisecond))
	_, err := b.Embed(ctx, texts(1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrackerReports(t *testing.T) {
	var sb strings.Builder
	tr := NewTracker(&sb, 40, 10)
	tr.Start()

	tr.Func()(16, 40)
	tr.Func()(32, 40)
	tr.Finish()

	out := sb.String()
	assert.Contains(t, out, "16/40")
	assert.Contains(t, out, "32/40")
	assert.Contains(t, out, "40/40")
	assert.Contains(t, out, "100.0%")
	assert.Greater(t, tr.Elapsed(), time.Duration(0))
}

func TestTrackerIgnoresUpdatesBeforeStart(t *testing.T) {
	var sb strings.Builder
	tr := NewTracker(&sb, 10, 1)

	tr.Update(5)
	tr.Finish()
	assert.Empty(t, sb.String())
}
