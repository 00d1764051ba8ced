// Package ingestion owns the document lifecycle state machine.
//
// An Orchestrator drives one source item end to end: quota-reserving
// creation, extraction, chunking, embedding, and the dual-store write, and
// always resolves the document to a terminal status. Chunk rows are written
// first in one transaction, establishing the deterministic vector keys;
// vectors are upserted second; only then does the document become ready. A
// vector upsert failure rolls the attempt's chunk rows back so the two
// stores never diverge. Deletion runs as a saga through the deleting
// status, which survives partial failures and can be retried.
package ingestion
