package core

import (
	"time"

	"github.com/google/uuid"
)

// SourceKind identifies where a document's content comes from.
type SourceKind string

const (
	// SourcePDF is an uploaded binary PDF document.
	SourcePDF SourceKind = "pdf"
	// SourceURL is a remote web page fetched over HTTPS.
	SourceURL SourceKind = "url"
	// SourceText is raw text submitted directly.
	SourceText SourceKind = "text"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourcePDF, SourceURL, SourceText:
		return true
	}
	return false
}

// Status is a document's lifecycle state.
type Status string

const (
	// StatusUploading is the initial state after the quota reservation.
	StatusUploading Status = "uploading"
	// StatusProcessing means the ingestion sequence is running.
	StatusProcessing Status = "processing"
	// StatusReady is the successful terminal state; ChunkCount is
	// authoritative only in this state.
	StatusReady Status = "ready"
	// StatusFailed is the terminal failure state; ErrorMessage is set.
	StatusFailed Status = "failed"
	// StatusDeleting means the deletion saga has started but not completed
	// in both stores. A document in this state can be deleted again to
	// retry the saga.
	StatusDeleting Status = "deleting"
)

// ValidTransition reports whether a document may move from one status to
// another. Transitions are one-directional except for the retry path:
// ready and failed documents may re-enter processing on re-ingestion.
func ValidTransition(from, to Status) bool {
	if to == StatusDeleting {
		return true
	}
	switch from {
	case StatusUploading:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusReady || to == StatusFailed
	case StatusReady, StatusFailed:
		return to == StatusProcessing
	}
	return false
}

// Document is one ingested source item.
type Document struct {
	ID           uuid.UUID
	OwnerID      string
	Title        string
	SourceKind   SourceKind
	SourceURL    string // set for url-sourced documents
	Filename     string // original filename for uploads
	Status       Status
	ChunkCount   int
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  time.Time // zero until the document first reaches a terminal state
}

// Chunk is one segment of a document's extracted text. Positions for a
// document form a contiguous sequence starting at 0.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Position   int
	Content    string
	TokenCount int
	VectorKey  string
}

// VectorMetadata is the metadata stored alongside an embedding in the
// vector index. Content carries a raw text copy for retrieval-time display.
type VectorMetadata struct {
	OwnerID    string
	DocumentID uuid.UUID
	Position   int
	SourceKind SourceKind
	CreatedAt  time.Time
	Content    string
}

// VectorRecord is the vector index representation of a chunk. Exactly one
// record exists per chunk and its lifecycle is tied to the chunk's.
type VectorRecord struct {
	Key      string
	Vector   []float32
	Metadata VectorMetadata
}
