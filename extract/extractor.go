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


// Package extract converts heterogeneous source material into sanitized
// plain text. It dispatches by source kind: uploaded PDF documents, remote
// URLs (through the secure fetcher), and raw text.
package extract

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/fetch"
	"github.com/studyforge/corpus/sanitize"
)

const (
	// DefaultMaxPDFBytes caps uploaded PDF size.
	DefaultMaxPDFBytes = 10 << 20 // 10 MB

	// DefaultMaxTextLength caps raw text submissions, measured before
	// sanitization.
	DefaultMaxTextLength = 100_000

	// maxDerivedTitleLength bounds titles derived from content.
	maxDerivedTitleLength = 120
)

// Source is one item to extract.
type Source struct {
	Kind     core.SourceKind
	Data     []byte // pdf and text payloads
	URL      string // url payloads
	Filename string // original upload filename, if any
	Title    string // caller-supplied title, optional
}

// Result is sanitized plain text plus a title, derived when the caller did
// not supply one.
type Result struct {
	Title  string
	Text   string
	Length int // sanitized length in runes
}

// Extractor produces sanitized text from a Source.
type Extractor struct {
	fetcher       *fetch.Fetcher
	maxPDFBytes   int
	minTextLength int
	maxTextLength int
	logger        *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxPDFBytes sets the PDF size cap.
func WithMaxPDFBytes(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxPDFBytes = n
		}
	}
}

// WithTextBounds sets the raw-text length bounds.
func WithTextBounds(min, max int) Option {
	return func(e *Extractor) {
		if min > 0 {
			e.minTextLength = min
		}
		if max > 0 {
			e.maxTextLength = max
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Extractor. The fetcher is required for url sources; pass
// nil only when url ingestion is disabled.
func New(fetcher *fetch.Fetcher, opts ...Option) *Extractor {
	e := &Extractor{
		fetcher:       fetcher,
		maxPDFBytes:   DefaultMaxPDFBytes,
		minTextLength: sanitize.DefaultMinLength,
		maxTextLength: DefaultMaxTextLength,
		logger:        slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract dispatches by source kind and converges on sanitized plain text.
func (e *Extractor) Extract(ctx context.Context, src Source) (*Result, error) {
	switch src.Kind {
	case core.SourcePDF:
		return e.extractPDF(ctx, src)
	case core.SourceURL:
		return e.extractURL(ctx, src)
	case core.SourceText:
		return e.extractText(src)
	}
	return nil, core.E(core.KindValidation, "unknown source kind %q", src.Kind)
}

func (e *Extractor) extractURL(ctx context.Context, src Source) (*Result, error) {
	if e.fetcher == nil {
		return nil, core.E(core.KindValidation, "url ingestion is not configured")
	}
	title, raw, err := e.fetcher.FetchText(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	text, length, ok := sanitize.SanitizeAndValidate(raw, e.minTextLength)
	if !ok {
		return nil, core.E(core.KindExtraction, "page yields only %d characters of text, need %d", length, e.minTextLength)
	}

	return &Result{
		Title:  e.deriveTitle(src.Title, title, text),
		Text:   text,
		Length: length,
	}, nil
}

func (e *Extractor) extractText(src Source) (*Result, error) {
	raw := string(src.Data)
	if len([]rune(raw)) > e.maxTextLength {
		return nil, core.E(core.KindValidation, "text exceeds %d character limit", e.maxTextLength)
	}

	text, length, ok := sanitize.SanitizeAndValidate(raw, e.minTextLength)
	if !ok {
		return nil, core.E(core.KindValidation, "text has %d characters after sanitization, need at least %d", length, e.minTextLength)
	}

	return &Result{
		Title:  e.deriveTitle(src.Title, "", text),
		Text:   text,
		Length: length,
	}, nil
}

// deriveTitle picks the first non-empty candidate: the caller's title, the
// extracted one, then the first line of the text.
func (e *Extractor) deriveTitle(supplied, extracted, text string) string {
	for _, candidate := range []string{supplied, extracted} {
		if t := strings.TrimSpace(candidate); t != "" {
			return truncateTitle(t)
		}
	}
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return truncateTitle(strings.TrimSpace(line))
}

// titleFromFilename derives a title from an upload filename stem.
func titleFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func truncateTitle(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDerivedTitleLength {
		return s
	}
	return string(runes[:maxDerivedTitleLength])
}
