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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/studyforge/corpus/chunk"
	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/embed"
	"github.com/studyforge/corpus/extract"
	"github.com/studyforge/corpus/storage"
)

const (
	// DefaultQuota is the per-owner document limit.
	DefaultQuota = 50

	// minTextLength and maxTextLength bound raw-text submissions before
	// any document row is created.
	minTextLength = 100
	maxTextLength = 100_000

	// maxErrorMessageLength bounds the failure message stored on a
	// document.
	maxErrorMessageLength = 500
)

// Request is one ingestion submission.
type Request struct {
	OwnerID    string          `validate:"required,max=128"`
	SourceKind core.SourceKind `validate:"required"`
	Title      string          `validate:"omitempty,max=500"`

	// URL is required for url-sourced requests.
	URL string `validate:"omitempty,max=2048"`

	// Data carries the PDF payload for pdf-sourced requests.
	Data []byte

	// Filename is the original upload name for pdf-sourced requests.
	Filename string `validate:"omitempty,max=255"`

	// Text carries the payload for text-sourced requests.
	Text string

	// DocumentID, when set, re-ingests an existing document instead of
	// creating a new one. The document re-enters processing and its chunk
	// and vector entries are overwritten under the same deterministic keys.
	DocumentID uuid.UUID
}

// Orchestrator drives documents through the ingestion state machine.
type Orchestrator struct {
	documents storage.DocumentStore
	vectors   storage.VectorStore
	extractor *extract.Extractor
	chunker   *chunk.Chunker
	batcher   *embed.Batcher
	quota     int
	validate  *validator.Validate
	progress  embed.ProgressFunc
	logger    *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithQuota sets the per-owner document limit.
func WithQuota(quota int) Option {
	return func(o *Orchestrator) {
		if quota > 0 {
			o.quota = quota
		}
	}
}

// WithProgress sets a callback receiving cumulative embedding progress.
func WithProgress(fn embed.ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator over the given stages and stores.
func NewOrchestrator(
	documents storage.DocumentStore,
	vectors storage.VectorStore,
	extractor *extract.Extractor,
	chunker *chunk.Chunker,
	batcher *embed.Batcher,
	opts ...Option,
) (*Orchestrator, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if batcher == nil {
		return nil, ErrBatcherRequired
	}

	o := &Orchestrator{
		documents: documents,
		vectors:   vectors,
		extractor: extractor,
		chunker:   chunker,
		batcher:   batcher,
		quota:     DefaultQuota,
		validate:  validator.New(),
		logger:    slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Ingest drives one submission to a terminal status and returns the
// document as stored. Validation and quota failures return before any
// document row is created or any external call is made. Later stage
// failures leave the document in failed with a message; the returned error
// carries the stage's error kind.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*core.Document, error) {
	if err := o.validateRequest(req); err != nil {
		return nil, err
	}

	doc, err := o.prepareDocument(ctx, req)
	if err != nil {
		return nil, err
	}

	if runErr := o.run(ctx, doc, req); runErr != nil {
		o.fail(ctx, doc.ID, runErr)
		failed, err := o.documents.GetDocument(context.WithoutCancel(ctx), doc.ID)
		if err != nil {
			return nil, runErr
		}
		return failed, runErr
	}

	ready, err := o.documents.GetDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	o.logger.Info("document ingested",
		"document", ready.ID, "owner", ready.OwnerID, "chunks", ready.ChunkCount)
	return ready, nil
}

// GetStatus returns the document as stored.
func (o *Orchestrator) GetStatus(ctx context.Context, id uuid.UUID) (*core.Document, error) {
	return o.documents.GetDocument(ctx, id)
}

// Delete removes a document from both stores as a saga: the document moves
// to deleting, vectors are removed by document filter, then the relational
// rows cascade and the quota slot is released. A mid-saga failure leaves
// the document in deleting; calling Delete again retries the remainder.
func (o *Orchestrator) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := o.documents.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	if doc.Status != core.StatusDeleting {
		if err := o.documents.UpdateStatus(ctx, id, core.StatusDeleting, ""); err != nil {
			return err
		}
	}

	if err := o.vectors.DeleteByDocument(ctx, id); err != nil {
		return core.Wrap(core.KindExternal, "vector deletion failed, document stays in deleting", err)
	}
	if err := o.documents.DeleteDocument(ctx, id); err != nil {
		return err
	}

	o.logger.Info("document deleted", "document", id, "owner", doc.OwnerID)
	return nil
}

// Reingest re-runs ingestion for a url-sourced document, re-fetching its
// source. Documents of other kinds need their payload resubmitted through
// Ingest with DocumentID set.
func (o *Orchestrator) Reingest(ctx context.Context, id uuid.UUID) (*core.Document, error) {
	doc, err := o.documents.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.SourceKind != core.SourceURL {
		return nil, core.E(core.KindValidation,
			"document %s is %s-sourced, only url documents can be re-fetched", id, doc.SourceKind)
	}

	return o.Ingest(ctx, Request{
		OwnerID:    doc.OwnerID,
		SourceKind: core.SourceURL,
		Title:      doc.Title,
		URL:        doc.SourceURL,
		DocumentID: id,
	})
}

// validateRequest rejects malformed submissions before any side effect.
func (o *Orchestrator) validateRequest(req Request) error {
	if err := o.validate.Struct(req); err != nil {
		return core.Wrap(core.KindValidation, "invalid request", err)
	}
	if !req.SourceKind.Valid() {
		return core.E(core.KindValidation, "unknown source kind %q", req.SourceKind)
	}

	switch req.SourceKind {
	case core.SourceURL:
		if req.URL == "" {
			return core.E(core.KindValidation, "url is required for url-sourced documents")
		}
	case core.SourcePDF:
		if len(req.Data) == 0 {
			return core.E(core.KindValidation, "pdf payload is empty")
		}
	case core.SourceText:
		length := utf8.RuneCountInString(req.Text)
		if length < minTextLength {
			return core.E(core.KindValidation, "text is %d characters, minimum is %d", length, minTextLength)
		}
		if length > maxTextLength {
			return core.E(core.KindValidation, "text is %d characters, maximum is %d", length, maxTextLength)
		}
	}
	return nil
}

// prepareDocument creates the document row (reserving quota) or, for
// re-ingestion, re-enters processing on the existing row.
func (o *Orchestrator) prepareDocument(ctx context.Context, req Request) (*core.Document, error) {
	if req.DocumentID != uuid.Nil {
		doc, err := o.documents.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return nil, err
		}
		if doc.OwnerID != req.OwnerID {
			return nil, core.Wrap(core.KindValidation, "re-ingestion denied", ErrOwnerMismatch)
		}
		if err := o.documents.UpdateStatus(ctx, doc.ID, core.StatusProcessing, ""); err != nil {
			return nil, err
		}
		doc.Status = core.StatusProcessing
		return doc, nil
	}

	doc := &core.Document{
		ID:         uuid.New(),
		OwnerID:    req.OwnerID,
		Title:      req.Title,
		SourceKind: req.SourceKind,
		SourceURL:  req.URL,
		Filename:   req.Filename,
		Status:     core.StatusUploading,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.documents.CreateDocument(ctx, doc, o.quota); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			return nil, core.Wrap(core.KindQuota, "submission rejected", err)
		}
		return nil, err
	}
	if err := o.documents.UpdateStatus(ctx, doc.ID, core.StatusProcessing, ""); err != nil {
		return nil, err
	}
	doc.Status = core.StatusProcessing
	return doc, nil
}

// run executes extract, chunk, embed, and the dual-store write.
func (o *Orchestrator) run(ctx context.Context, doc *core.Document, req Request) error {
	result, err := o.extractor.Extract(ctx, extract.Source{
		Kind:     req.SourceKind,
		Data:     req.Data,
		URL:      req.URL,
		Filename: req.Filename,
		Title:    req.Title,
	})
	if err != nil {
		return err
	}

	if req.Title == "" && result.Title != "" {
		if err := o.documents.UpdateTitle(ctx, doc.ID, result.Title); err != nil {
			return err
		}
	}

	pieces, err := o.chunker.Chunk(ctx, result.Text)
	if err != nil {
		return err
	}
	if len(pieces) == 0 {
		return core.E(core.KindExtraction, "document produced no chunks")
	}

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := o.batcher.EmbedAll(ctx, texts, o.progress)
	if err != nil {
		return err
	}

	chunks := make([]*core.Chunk, len(pieces))
	records := make([]*core.VectorRecord, len(pieces))
	now := time.Now().UTC()
	for i, piece := range pieces {
		key := core.VectorKey(doc.ID, piece.Position)
		chunks[i] = &core.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			Position:   piece.Position,
			Content:    piece.Text,
			TokenCount: piece.TokenCount,
			VectorKey:  key,
		}
		records[i] = &core.VectorRecord{
			Key:    key,
			Vector: vectors[i],
			Metadata: core.VectorMetadata{
				OwnerID:    doc.OwnerID,
				DocumentID: doc.ID,
				Position:   piece.Position,
				SourceKind: doc.SourceKind,
				CreatedAt:  now,
				Content:    piece.Text,
			},
		}
	}

	// Chunk rows first: one transaction establishes the keys the vector
	// upsert will reference.
	if err := o.documents.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return err
	}
	if err := o.vectors.Upsert(ctx, records); err != nil {
		// Roll this attempt's rows back so no chunk references a missing
		// vector. The rollback must run even when ctx is already canceled.
		cleanupCtx := context.WithoutCancel(ctx)
		if delErr := o.documents.DeleteChunks(cleanupCtx, doc.ID); delErr != nil {
			o.logger.Error("chunk rollback failed after vector upsert failure",
				"document", doc.ID, "err", delErr)
		}
		return core.Wrap(core.KindExternal, "vector upsert failed", err)
	}

	return o.documents.MarkReady(ctx, doc.ID, len(chunks))
}

// fail writes the terminal failed status. It uses a non-cancelable context
// so a canceled ingestion still resolves, never stranding the document in
// processing.
func (o *Orchestrator) fail(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	if utf8.RuneCountInString(msg) > maxErrorMessageLength {
		msg = string([]rune(msg)[:maxErrorMessageLength])
	}

	err := o.documents.UpdateStatus(context.WithoutCancel(ctx), id, core.StatusFailed, msg)
	if err != nil {
		o.logger.Error("failed to record terminal status", "document", id, "err", err)
		return
	}
	o.logger.Warn("document failed",
		"document", id, "kind", fmt.Sprint(core.KindOf(cause)), "err", cause)
}
