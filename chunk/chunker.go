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

// Package chunk splits sanitized text into overlapping, token-bounded
// segments with position metadata.
//
// Splitting is recursive over an ordered list of separators from coarse to
// fine: paragraph break, line break, sentence-ending punctuation, clause
// punctuation, plain space. Only pieces still exceeding the target are split
// at the next finer level, so the coarsest separator that yields pieces
// within budget wins. Adjacent pieces are then merged back up to the target
// size, and each chunk after the first re-prepends the trailing overlap of
// its predecessor.
package chunk

import (
	"context"
	"strings"

	"github.com/studyforge/corpus/core"
)

const (
	// DefaultTargetTokens is the ideal chunk size.
	DefaultTargetTokens = 500

	// DefaultOverlapTokens is how much of the previous chunk is
	// re-prepended to the next one.
	DefaultOverlapTokens = 50

	// DefaultMaxChunks caps how many chunks one document may produce.
	// Documents over the cap are rejected, not truncated.
	DefaultMaxChunks = 50

	// fallbackCharsPerToken sizes hard cuts of separator-free runs.
	fallbackCharsPerToken = 4
)

// Counter counts tokens in text. *token.Estimator satisfies it.
type Counter interface {
	Count(ctx context.Context, text string) int
}

// Piece is one chunk of a document. Text includes the overlap prefix;
// Text[len(Overlap):] is the core text, equal to the original input at
// [StartOffset:EndOffset). Positions are contiguous from 0.
type Piece struct {
	Text        string
	Overlap     string
	Position    int
	StartOffset int
	EndOffset   int
	TokenCount  int
}

// Chunker splits text into Pieces.
type Chunker struct {
	counter       Counter
	targetTokens  int
	overlapTokens int
	maxChunks     int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTargetTokens sets the ideal chunk size.
func WithTargetTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.targetTokens = n
		}
	}
}

// WithOverlapTokens sets the overlap carried between consecutive chunks.
func WithOverlapTokens(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlapTokens = n
		}
	}
}

// WithMaxChunks sets the per-document chunk cap.
func WithMaxChunks(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChunks = n
		}
	}
}

// New creates a Chunker backed by the given token counter.
func New(counter Counter, opts ...Option) *Chunker {
	c := &Chunker{
		counter:       counter,
		targetTokens:  DefaultTargetTokens,
		overlapTokens: DefaultOverlapTokens,
		maxChunks:     DefaultMaxChunks,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxTokens is the hard per-chunk token ceiling: the target plus the
// overlap prefix.
func (c *Chunker) MaxTokens() int {
	return c.targetTokens + c.overlapTokens
}

// span is a half-open byte range into the input text.
type span struct {
	start, end int
}

// Chunk splits text into ordered pieces. A document yielding more than the
// configured maximum chunk count fails with a capacity error.
func (c *Chunker) Chunk(ctx context.Context, text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	leaves := c.split(ctx, text, span{0, len(text)}, levelParagraph)
	merged := c.merge(ctx, text, leaves)

	if len(merged) > c.maxChunks {
		return nil, core.E(core.KindCapacity, "document yields %d chunks, maximum is %d", len(merged), c.maxChunks)
	}

	pieces := make([]Piece, len(merged))
	prevCore := ""
	for i, sp := range merged {
		body := text[sp.start:sp.end]
		overlap := ""
		if i > 0 && c.overlapTokens > 0 {
			overlap = c.tailByTokens(ctx, prevCore, c.overlapTokens)
		}
		full := overlap + body
		pieces[i] = Piece{
			Text:        full,
			Overlap:     overlap,
			Position:    i,
			StartOffset: sp.start,
			EndOffset:   sp.end,
			TokenCount:  c.counter.Count(ctx, full),
		}
		prevCore = body
	}

	return pieces, nil
}

// Separator levels, coarse to fine.
type level int

const (
	levelParagraph level = iota
	levelLine
	levelSentence
	levelClause
	levelSpace
	levelNone
)

// split recursively divides sp until every leaf fits the target budget.
func (c *Chunker) split(ctx context.Context, text string, sp span, lvl level) []span {
	if c.counter.Count(ctx, text[sp.start:sp.end]) <= c.targetTokens {
		return []span{sp}
	}
	if lvl == levelNone {
		return c.hardCut(text, sp)
	}

	bounds := findBoundaries(text, sp, lvl)
	if len(bounds) == 0 {
		return c.split(ctx, text, sp, lvl+1)
	}

	var out []span
	start := sp.start
	for _, b := range append(bounds, sp.end) {
		if b <= start {
			continue
		}
		seg := span{start, b}
		if c.counter.Count(ctx, text[seg.start:seg.end]) > c.targetTokens {
			out = append(out, c.split(ctx, text, seg, lvl+1)...)
		} else {
			out = append(out, seg)
		}
		start = b
	}
	return out
}

// hardCut slices a separator-free run into fixed windows. Last resort for
// pathological input.
func (c *Chunker) hardCut(text string, sp span) []span {
	window := c.targetTokens * fallbackCharsPerToken
	var out []span
	start := sp.start
	count := 0
	for i := range text[sp.start:sp.end] {
		if count == window {
			out = append(out, span{start, sp.start + i})
			start = sp.start + i
			count = 0
		}
		count++
	}
	if start < sp.end {
		out = append(out, span{start, sp.end})
	}
	return out
}

// findBoundaries returns byte positions inside sp where a piece may end at
// the given separator level. Each boundary sits after the separator, so the
// separator stays attached to the left piece and concatenating pieces
// reproduces the input exactly.
func findBoundaries(text string, sp span, lvl level) []int {
	seg := text[sp.start:sp.end]
	var bounds []int

	add := func(rel int) {
		abs := sp.start + rel
		if abs > sp.start && abs < sp.end {
			bounds = append(bounds, abs)
		}
	}

	switch lvl {
	case levelParagraph:
		for i := 0; i+1 < len(seg); i++ {
			if seg[i] == '\n' && seg[i+1] == '\n' {
				add(i + 2)
			}
		}
	case levelLine:
		for i := 0; i < len(seg); i++ {
			if seg[i] == '\n' && (i+1 >= len(seg) || seg[i+1] != '\n') && (i == 0 || seg[i-1] != '\n') {
				add(i + 1)
			}
		}
	case levelSentence:
		for i := 0; i+1 < len(seg); i++ {
			ch := seg[i]
			if (ch == '.' || ch == '!' || ch == '?') && seg[i+1] == ' ' {
				if ch == '.' && isAbbreviation(seg, i) {
					continue
				}
				add(i + 2)
			}
		}
	case levelClause:
		for i := 0; i+1 < len(seg); i++ {
			ch := seg[i]
			if (ch == ';' || ch == ',' || ch == ':') && seg[i+1] == ' ' {
				add(i + 2)
			}
		}
	case levelSpace:
		for i := 0; i < len(seg); i++ {
			if seg[i] == ' ' {
				add(i + 1)
			}
		}
	}

	return bounds
}

// Common abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "vs": {}, "etc": {}, "al": {}, "fig": {}, "no": {}, "dept": {},
	"inc": {}, "ltd": {}, "co": {}, "approx": {}, "apt": {}, "est": {},
	"e.g": {}, "i.e": {}, "cf": {}, "ca": {}, "resp": {},
}

// isAbbreviation reports whether the period at dot terminates a known
// abbreviation or an initial rather than a sentence.
func isAbbreviation(seg string, dot int) bool {
	start := dot
	for start > 0 {
		ch := seg[start-1]
		if ch == ' ' || ch == '\n' || ch == '\t' {
			break
		}
		start--
	}
	word := strings.ToLower(seg[start:dot])
	if word == "" {
		return false
	}
	// Single letters are initials: "J. Smith".
	if len(word) == 1 && word[0] >= 'a' && word[0] <= 'z' {
		return true
	}
	_, ok := abbreviations[word]
	return ok
}

// merge greedily coalesces adjacent leaves so each chunk approaches the
// target size without exceeding it.
func (c *Chunker) merge(ctx context.Context, text string, leaves []span) []span {
	if len(leaves) == 0 {
		return nil
	}

	var out []span
	cur := leaves[0]
	for _, next := range leaves[1:] {
		candidate := span{cur.start, next.end}
		if c.counter.Count(ctx, text[candidate.start:candidate.end]) <= c.targetTokens {
			cur = candidate
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// tailByTokens returns a word-aligned suffix of text worth at most
// maxTokens tokens.
func (c *Chunker) tailByTokens(ctx context.Context, text string, maxTokens int) string {
	if maxTokens <= 0 || text == "" {
		return ""
	}
	if c.counter.Count(ctx, text) <= maxTokens {
		return text
	}

	// Walk word boundaries from the end until the budget is exhausted.
	end := len(text)
	best := ""
	for end > 0 {
		i := strings.LastIndexByte(text[:end], ' ')
		if i < 0 {
			break
		}
		candidate := text[i+1:]
		if c.counter.Count(ctx, candidate) > maxTokens {
			break
		}
		best = candidate
		end = i
	}
	return best
}
