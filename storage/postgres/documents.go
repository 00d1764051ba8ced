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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/storage"
)

const uniqueViolation = "23505"

// DocumentStore implements storage.DocumentStore on a pgx pool.
type DocumentStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a DocumentStore on the given pool.
func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{
		pool:   pool,
		logger: slog.Default().With("component", "postgres-documents"),
	}
}

// CreateDocument inserts doc and reserves one quota slot. The per-owner
// advisory lock serializes concurrent submissions so the count check and
// the insert are atomic.
func (d *DocumentStore) CreateDocument(ctx context.Context, doc *core.Document, quota int) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doc.OwnerID); err != nil {
		return err
	}

	var count int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM documents WHERE owner_id = $1`, doc.OwnerID).Scan(&count)
	if err != nil {
		return err
	}
	if count >= quota {
		return fmt.Errorf("owner %s holds %d of %d documents: %w",
			doc.OwnerID, count, quota, storage.ErrQuotaExceeded)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO documents (id, owner_id, title, source_kind, source_url, filename,
			status, chunk_count, error_message, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		doc.ID, doc.OwnerID, doc.Title, doc.SourceKind, doc.SourceURL, doc.Filename,
		doc.Status, doc.ChunkCount, doc.ErrorMessage, doc.CreatedAt, nullableTime(doc.ProcessedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("document %s: %w", doc.ID, storage.ErrDuplicateKey)
		}
		return err
	}

	return tx.Commit(ctx)
}

// GetDocument returns the document by ID.
func (d *DocumentStore) GetDocument(ctx context.Context, id uuid.UUID) (*core.Document, error) {
	return scanDocument(d.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, source_kind, source_url, filename,
			status, chunk_count, error_message, created_at, processed_at
		FROM documents WHERE id = $1`, id))
}

// UpdateStatus moves the document to a new status.
func (d *DocumentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status core.Status, errorMessage string) error {
	return d.withLockedDocument(ctx, id, func(tx pgx.Tx, current core.Status) error {
		if !core.ValidTransition(current, status) {
			return fmt.Errorf("%s -> %s: %w", current, status, storage.ErrInvalidTransition)
		}
		var processedAt any
		if status == core.StatusFailed {
			processedAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx, `
			UPDATE documents
			SET status = $2, error_message = $3,
				processed_at = COALESCE($4, processed_at)
			WHERE id = $1`,
			id, status, errorMessage, processedAt)
		return err
	})
}

// MarkReady transitions the document to ready with its final chunk count.
func (d *DocumentStore) MarkReady(ctx context.Context, id uuid.UUID, chunkCount int) error {
	return d.withLockedDocument(ctx, id, func(tx pgx.Tx, current core.Status) error {
		if !core.ValidTransition(current, core.StatusReady) {
			return fmt.Errorf("%s -> %s: %w", current, core.StatusReady, storage.ErrInvalidTransition)
		}
		_, err := tx.Exec(ctx, `
			UPDATE documents
			SET status = $2, chunk_count = $3, error_message = '', processed_at = $4
			WHERE id = $1`,
			id, core.StatusReady, chunkCount, time.Now().UTC())
		return err
	})
}

// UpdateTitle replaces the document's title.
func (d *DocumentStore) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE documents SET title = $2 WHERE id = $1`, id, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ReplaceChunks atomically swaps the document's chunk rows.
func (d *DocumentStore) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*core.Chunk) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	for _, chunk := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, position, content, token_count, vector_key)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			chunk.ID, chunk.DocumentID, chunk.Position, chunk.Content, chunk.TokenCount, chunk.VectorKey)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListChunks returns the document's chunks ordered by position.
func (d *DocumentStore) ListChunks(ctx context.Context, documentID uuid.UUID) ([]*core.Chunk, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, document_id, position, content, token_count, vector_key
		FROM chunks WHERE document_id = $1 ORDER BY position`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		chunk := &core.Chunk{}
		err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position,
			&chunk.Content, &chunk.TokenCount, &chunk.VectorKey)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunks removes all chunk rows for the document.
func (d *DocumentStore) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

// DeleteDocument removes the document; chunks cascade through the foreign
// key and the quota releases with the row.
func (d *DocumentStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// CountByOwner returns the owner's document count.
func (d *DocumentStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE owner_id = $1`, ownerID).Scan(&count)
	return count, err
}

// ListByOwner returns the owner's documents ordered by creation time.
func (d *DocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Document, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, owner_id, title, source_kind, source_url, filename,
			status, chunk_count, error_message, created_at, processed_at
		FROM documents WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Close releases the connection pool.
func (d *DocumentStore) Close() error {
	d.pool.Close()
	return nil
}

// withLockedDocument runs fn with the document's current status read under
// FOR UPDATE, committing on success.
func (d *DocumentStore) withLockedDocument(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx, current core.Status) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current core.Status
	err = tx.QueryRow(ctx, `SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return err
	}

	if err := fn(tx, current); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*core.Document, error) {
	doc := &core.Document{}
	var processedAt *time.Time
	err := row.Scan(&doc.ID, &doc.OwnerID, &doc.Title, &doc.SourceKind, &doc.SourceURL,
		&doc.Filename, &doc.Status, &doc.ChunkCount, &doc.ErrorMessage, &doc.CreatedAt, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document: %w", storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if processedAt != nil {
		doc.ProcessedAt = *processedAt
	}
	return doc, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
