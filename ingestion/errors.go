package ingestion

import "errors"

var (
	// ErrDocumentStoreRequired indicates a nil document store was provided.
	ErrDocumentStoreRequired = errors.New("document store is required")

	// ErrVectorStoreRequired indicates a nil vector store was provided.
	ErrVectorStoreRequired = errors.New("vector store is required")

	// ErrExtractorRequired indicates a nil extractor was provided.
	ErrExtractorRequired = errors.New("extractor is required")

	// ErrChunkerRequired indicates a nil chunker was provided.
	ErrChunkerRequired = errors.New("chunker is required")

	// ErrBatcherRequired indicates a nil batcher was provided.
	ErrBatcherRequired = errors.New("batcher is required")

	// ErrOwnerMismatch indicates a re-ingestion request for a document the
	// owner does not hold.
	ErrOwnerMismatch = errors.New("document belongs to a different owner")
)
