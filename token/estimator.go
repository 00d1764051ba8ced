// Package token estimates and counts text length in model tokens.
//
// Counting prefers an exact tiktoken tokenizer, initialized lazily on first
// use. When the tokenizer cannot be loaded (for example offline, since the
// encoding dictionary is fetched remotely), the estimator falls back
// permanently to a character-ratio estimate.
package token

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEncoding is the tiktoken encoding used for counting.
	DefaultEncoding = "cl100k_base"

	// DefaultCharsPerToken is the fallback ratio of characters per token.
	DefaultCharsPerToken = 4
)

// Estimator counts tokens in text. It is safe for concurrent use; the
// backing tokenizer is initialized at most once, and concurrent first
// callers observe the same in-flight initialization.
type Estimator struct {
	encoding      string
	charsPerToken int
	disabled      bool // skip tokenizer init, always estimate
	logger        *slog.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithEncoding sets the tiktoken encoding name.
func WithEncoding(name string) Option {
	return func(e *Estimator) {
		e.encoding = name
	}
}

// WithCharsPerToken sets the fallback character-to-token ratio.
func WithCharsPerToken(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.charsPerToken = n
		}
	}
}

// WithoutTokenizer pins the estimator to the character-ratio path. Used in
// tests and offline deployments.
func WithoutTokenizer() Option {
	return func(e *Estimator) {
		e.disabled = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Estimator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEstimator creates an estimator. The tokenizer is not loaded until the
// first Count or TruncateToLimit call.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{
		encoding:      DefaultEncoding,
		charsPerToken: DefaultCharsPerToken,
		logger:        slog.Default().With("component", "token-estimator"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// tokenizer returns the backing tokenizer, initializing it on first call.
// Returns nil when the tokenizer is unavailable; the fallback is permanent.
func (e *Estimator) tokenizer() *tiktoken.Tiktoken {
	if e.disabled {
		return nil
	}
	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding(e.encoding)
		if err != nil {
			e.logger.Warn("tokenizer unavailable, falling back to character-ratio estimate",
				"encoding", e.encoding, "err", err)
			return
		}
		e.enc = enc
	})
	return e.enc
}

// Count returns the number of tokens in text, using exact tokenization when
// available and the character-ratio estimate otherwise.
func (e *Estimator) Count(ctx context.Context, text string) int {
	if text == "" {
		return 0
	}
	if err := ctx.Err(); err != nil {
		return e.Estimate(text)
	}
	if enc := e.tokenizer(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return e.Estimate(text)
}

// Estimate returns the character-ratio token estimate, rounded up. It never
// touches the backing tokenizer and is safe for contexts that cannot block
// on initialization.
func (e *Estimator) Estimate(text string) int {
	runes := len([]rune(text))
	if runes == 0 {
		return 0
	}
	return (runes + e.charsPerToken - 1) / e.charsPerToken
}

// TruncateToLimit truncates text to at most maxTokens tokens, using exact
// tokenization when available and the character-ratio estimate otherwise.
// Input already within the limit is returned unchanged; empty input yields
// empty output.
func (e *Estimator) TruncateToLimit(ctx context.Context, text string, maxTokens int) string {
	if text == "" || maxTokens <= 0 {
		return ""
	}
	if enc := e.tokenizer(); enc != nil && ctx.Err() == nil {
		ids := enc.Encode(text, nil, nil)
		if len(ids) <= maxTokens {
			return text
		}
		return enc.Decode(ids[:maxTokens])
	}
	if e.Estimate(text) <= maxTokens {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxTokens*e.charsPerToken])
}
