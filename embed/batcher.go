// Copyright 2026 StudyForge
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

package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/studyforge/corpus/ai"
	"github.com/studyforge/corpus/core"
)

const (
	// DefaultBatchSize is the provider's per-call text limit.
	DefaultBatchSize = 16

	// DefaultBatchInterval paces consecutive provider calls: just over one
	// rate-limit period for a 2-requests-per-minute ceiling.
	DefaultBatchInterval = 31 * time.Second

	// DefaultBaseDelay is the first retry delay for transient failures.
	// It doubles on each subsequent retry.
	DefaultBaseDelay = 2 * time.Second

	// DefaultMaxElapsed bounds the total time spent retrying one batch.
	DefaultMaxElapsed = 5 * time.Minute
)

// Limiter paces provider calls. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ProgressFunc receives cumulative progress after each completed batch.
type ProgressFunc func(done, total int)

// Batcher calls an embedding provider in capped, rate-limited batches.
type Batcher struct {
	embedder   ai.Embedder
	batchSize  int
	limiter    Limiter
	baseDelay  time.Duration
	maxElapsed time.Duration
	logger     *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithBatchSize sets the per-call text limit.
func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithLimiter replaces the inter-batch pacing policy.
func WithLimiter(l Limiter) Option {
	return func(b *Batcher) {
		if l != nil {
			b.limiter = l
		}
	}
}

// WithBaseDelay sets the initial transient-retry delay.
func WithBaseDelay(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.baseDelay = d
		}
	}
}

// WithMaxElapsed sets the total retry time ceiling per batch.
func WithMaxElapsed(d time.Duration) Option {
	return func(b *Batcher) {
		if d > 0 {
			b.maxElapsed = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Batcher around the given embedder. The default limiter
// allows one call per DefaultBatchInterval with a burst of one, so the
// first batch goes out immediately and later batches wait their turn.
func New(embedder ai.Embedder, opts ...Option) *Batcher {
	b := &Batcher{
		embedder:   embedder,
		batchSize:  DefaultBatchSize,
		limiter:    rate.NewLimiter(rate.Every(DefaultBatchInterval), 1),
		baseDelay:  DefaultBaseDelay,
		maxElapsed: DefaultMaxElapsed,
		logger:     slog.Default().With("component", "embed-batcher"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BatchSize returns the per-call text limit.
func (b *Batcher) BatchSize() int {
	return b.batchSize
}

// Embed generates vectors for a single batch of at most BatchSize texts.
// Transient provider failures are retried with exponential backoff until
// the elapsed ceiling; permanent failures return immediately.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, core.Wrap(core.KindValidation, "embed", ErrEmptyBatch)
	}
	if len(texts) > b.batchSize {
		return nil, core.Wrap(core.KindValidation,
			fmt.Sprintf("embed: %d texts, limit %d", len(texts), b.batchSize), ErrBatchTooLarge)
	}
	return b.embedWithRetry(ctx, texts)
}

// EmbedAll partitions texts into batches, embeds them sequentially, and
// reports cumulative progress after each batch. Pacing happens before each
// provider call, so there is no trailing delay after the final batch.
// onProgress may be nil.
func (b *Batcher) EmbedAll(ctx context.Context, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, core.Wrap(core.KindValidation, "embed all", ErrEmptyBatch)
	}

	total := len(texts)
	vectors := make([][]float32, 0, total)

	for start := 0; start < total; start += b.batchSize {
		end := start + b.batchSize
		if end > total {
			end = total
		}

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		batch, err := b.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)

		b.logger.Debug("batch embedded", "done", len(vectors), "total", total)
		if onProgress != nil {
			onProgress(len(vectors), total)
		}
	}

	return vectors, nil
}

// embedWithRetry calls the provider, retrying transient failures with
// doubling delays until success, a permanent error, cancellation, or the
// elapsed-time ceiling.
func (b *Batcher) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	delay := b.baseDelay

	for attempt := 1; ; attempt++ {
		vectors, err := b.embedder.EmbedTexts(ctx, texts)
		if err == nil {
			if attempt > 1 {
				b.logger.Debug("embedding succeeded after retry", "attempt", attempt)
			}
			return vectors, nil
		}

		if ai.IsPermanent(err) {
			return nil, core.Wrap(core.KindValidation, "embedding request rejected", err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Since(start)+delay > b.maxElapsed {
			return nil, core.Wrap(core.KindExternal,
				fmt.Sprintf("embedding failed after %d attempts over %s", attempt, time.Since(start).Round(time.Millisecond)), err)
		}

		b.logger.Warn("transient embedding failure, will retry",
			"attempt", attempt, "delay", delay, "err", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
