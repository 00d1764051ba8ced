package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/studyforge/corpus/core"
)

// DocumentStore persists Document and Chunk rows.
// Implementations must be safe for concurrent use.
type DocumentStore interface {
	// CreateDocument inserts a new document and atomically reserves one
	// slot of the owner's quota. The check-and-reserve must hold under
	// concurrent submissions: no more than quota creations for one owner
	// may ever succeed. Returns ErrQuotaExceeded when the owner is full.
	CreateDocument(ctx context.Context, doc *core.Document, quota int) error

	// GetDocument returns the document by ID, or ErrNotFound.
	GetDocument(ctx context.Context, id uuid.UUID) (*core.Document, error)

	// UpdateStatus moves the document to a new status, recording an error
	// message for failures. Disallowed transitions return
	// ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, status core.Status, errorMessage string) error

	// MarkReady transitions the document to ready, records the final
	// chunk count, and stamps the processed time.
	MarkReady(ctx context.Context, id uuid.UUID, chunkCount int) error

	// UpdateTitle replaces the document's title, used when extraction
	// derives a title the caller did not supply.
	UpdateTitle(ctx context.Context, id uuid.UUID, title string) error

	// ReplaceChunks deletes any existing chunk rows for the document and
	// inserts the given ones in a single transaction. An error leaves the
	// previous rows untouched.
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*core.Chunk) error

	// ListChunks returns the document's chunks ordered by position.
	ListChunks(ctx context.Context, documentID uuid.UUID) ([]*core.Chunk, error)

	// DeleteChunks removes all chunk rows for the document.
	DeleteChunks(ctx context.Context, documentID uuid.UUID) error

	// DeleteDocument removes the document, cascades to its chunks, and
	// releases the owner's quota slot.
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// CountByOwner returns the number of documents held by the owner.
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	// ListByOwner returns the owner's documents ordered by creation time.
	ListByOwner(ctx context.Context, ownerID string) ([]*core.Document, error)

	// Close releases the store's resources.
	Close() error
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	Key      string
	Score    float32
	Metadata core.VectorMetadata
}

// VectorStore persists embedding records.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Upsert inserts or overwrites records by key. Re-ingestion reuses
	// deterministic keys, so upserting the same document twice never
	// duplicates entries.
	Upsert(ctx context.Context, records []*core.VectorRecord) error

	// DeleteByDocument removes every record belonging to the document.
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error

	// KeysByDocument returns the keys of every record belonging to the
	// document.
	KeysByDocument(ctx context.Context, documentID uuid.UUID) ([]string, error)

	// Search returns up to limit records owned by ownerID ranked by
	// cosine similarity to the query vector, best first.
	Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]*SearchResult, error)

	// Close releases the store's resources.
	Close() error
}
