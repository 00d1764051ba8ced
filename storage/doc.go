// Package storage defines the persistence contracts consumed by the
// ingestion pipeline.
//
// Two narrow interfaces cover the dual-store model: DocumentStore holds
// Document and Chunk rows with transactional replace semantics and the
// atomic per-owner quota reservation; VectorStore holds embedding records
// keyed by deterministic vector keys with document-scoped deletion and
// similarity search.
//
// Implementations live in subpackages: storage/badger is the embedded
// store used by the CLI and tests, storage/postgres targets PostgreSQL
// with the pgvector extension.
package storage
