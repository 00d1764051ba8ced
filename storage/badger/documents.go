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

package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/storage"
)

// DocumentStore implements storage.DocumentStore on a Backend.
//
// The quota reservation reads the owner's count key and writes it back
// incremented inside one transaction. Badger's SSI detects concurrent
// writers of the same key at commit, so under contention exactly one
// transaction wins and the rest retry against the updated count. This is
// what keeps an owner at 49/50 from admitting two of fifty simultaneous
// submissions.
type DocumentStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a DocumentStore on the given backend.
func NewDocumentStore(backend *Backend) *DocumentStore {
	return &DocumentStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-documents"),
	}
}

// CreateDocument inserts doc and reserves one quota slot atomically.
func (d *DocumentStore) CreateDocument(ctx context.Context, doc *core.Document, quota int) error {
	for {
		err := d.backend.Update(func(tx *badger.Txn) error {
			if _, err := tx.Get(makeDocumentKey(doc.ID)); err == nil {
				return fmt.Errorf("document %s: %w", doc.ID, storage.ErrDuplicateKey)
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			count, err := readOwnerCount(tx, doc.OwnerID)
			if err != nil {
				return err
			}
			if count >= quota {
				return fmt.Errorf("owner %s holds %d of %d documents: %w",
					doc.OwnerID, count, quota, storage.ErrQuotaExceeded)
			}
			if err := writeOwnerCount(tx, doc.OwnerID, count+1); err != nil {
				return err
			}

			data, err := storage.MarshalDocument(doc)
			if err != nil {
				return err
			}
			if err := tx.Set(makeDocumentKey(doc.ID), data); err != nil {
				return err
			}
			return tx.Set(makeOwnerDocKey(doc.OwnerID, doc.ID), nil)
		})

		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Debug("quota reservation conflict, retrying", "owner", doc.OwnerID)
	}
}

// GetDocument returns the document by ID.
func (d *DocumentStore) GetDocument(ctx context.Context, id uuid.UUID) (*core.Document, error) {
	var doc *core.Document
	err := d.backend.View(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateStatus moves the document to a new status.
func (d *DocumentStore) UpdateStatus(ctx context.Context, id uuid.UUID, status core.Status, errorMessage string) error {
	return d.mutateDocument(ctx, id, func(doc *core.Document) error {
		if !core.ValidTransition(doc.Status, status) {
			return fmt.Errorf("%s -> %s: %w", doc.Status, status, storage.ErrInvalidTransition)
		}
		doc.Status = status
		doc.ErrorMessage = errorMessage
		if status == core.StatusFailed {
			doc.ProcessedAt = time.Now().UTC()
		}
		return nil
	})
}

// MarkReady transitions the document to ready with its final chunk count.
func (d *DocumentStore) MarkReady(ctx context.Context, id uuid.UUID, chunkCount int) error {
	return d.mutateDocument(ctx, id, func(doc *core.Document) error {
		if !core.ValidTransition(doc.Status, core.StatusReady) {
			return fmt.Errorf("%s -> %s: %w", doc.Status, core.StatusReady, storage.ErrInvalidTransition)
		}
		doc.Status = core.StatusReady
		doc.ChunkCount = chunkCount
		doc.ErrorMessage = ""
		doc.ProcessedAt = time.Now().UTC()
		return nil
	})
}

// UpdateTitle replaces the document's title.
func (d *DocumentStore) UpdateTitle(ctx context.Context, id uuid.UUID, title string) error {
	return d.mutateDocument(ctx, id, func(doc *core.Document) error {
		doc.Title = title
		return nil
	})
}

// ReplaceChunks atomically swaps the document's chunk rows.
func (d *DocumentStore) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []*core.Chunk) error {
	return d.backend.Update(func(tx *badger.Txn) error {
		if err := deleteByPrefix(tx, makeChunkPrefix(documentID)); err != nil {
			return err
		}
		for _, chunk := range chunks {
			data, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(makeChunkKey(documentID, chunk.Position), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListChunks returns the document's chunks ordered by position.
func (d *DocumentStore) ListChunks(ctx context.Context, documentID uuid.UUID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := d.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkPrefix(documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				chunks = append(chunks, chunk)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteChunks removes all chunk rows for the document.
func (d *DocumentStore) DeleteChunks(ctx context.Context, documentID uuid.UUID) error {
	return d.backend.Update(func(tx *badger.Txn) error {
		return deleteByPrefix(tx, makeChunkPrefix(documentID))
	})
}

// DeleteDocument removes the document, its chunks, and its quota slot.
func (d *DocumentStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	for {
		err := d.backend.Update(func(tx *badger.Txn) error {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}

			if err := deleteByPrefix(tx, makeChunkPrefix(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentKey(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeOwnerDocKey(doc.OwnerID, id)); err != nil {
				return err
			}

			count, err := readOwnerCount(tx, doc.OwnerID)
			if err != nil {
				return err
			}
			if count > 0 {
				count--
			}
			return writeOwnerCount(tx, doc.OwnerID, count)
		})

		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Debug("quota release conflict, retrying", "document", id)
	}
}

// CountByOwner returns the owner's document count.
func (d *DocumentStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := d.backend.View(func(tx *badger.Txn) error {
		var err error
		count, err = readOwnerCount(tx, ownerID)
		return err
	})
	return count, err
}

// ListByOwner returns the owner's documents ordered by creation time.
func (d *DocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]*core.Document, error) {
	var docs []*core.Document
	err := d.backend.View(func(tx *badger.Txn) error {
		prefix := makeOwnerDocPrefix(ownerID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			id, err := uuid.FromBytes(key[len(prefix):])
			if err != nil {
				return err
			}
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(docs, func(a, b *core.Document) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return docs, nil
}

// Close is a no-op; the shared Backend owns the database lifecycle.
func (d *DocumentStore) Close() error {
	return nil
}

// mutateDocument applies fn to the stored document and writes it back,
// retrying SSI conflicts.
func (d *DocumentStore) mutateDocument(ctx context.Context, id uuid.UUID, fn func(*core.Document) error) error {
	for {
		err := d.backend.Update(func(tx *badger.Txn) error {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if err := fn(doc); err != nil {
				return err
			}
			data, err := storage.MarshalDocument(doc)
			if err != nil {
				return err
			}
			return tx.Set(makeDocumentKey(id), data)
		})

		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func readDocument(tx *badger.Txn, id uuid.UUID) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func readOwnerCount(tx *badger.Txn, ownerID string) (int, error) {
	item, err := tx.Get(makeOwnerCountKey(ownerID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var count int
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("owner count for %s: %w", ownerID, storage.ErrSerializationFailed)
		}
		count = int(binary.BigEndian.Uint64(val))
		return nil
	})
	return count, err
}

func writeOwnerCount(tx *badger.Txn, ownerID string, count int) error {
	return tx.Set(makeOwnerCountKey(ownerID), binary.BigEndian.AppendUint64(nil, uint64(count)))
}

// deleteByPrefix removes every key under prefix. Keys are collected before
// deletion because the iterator must not observe its own writes.
func deleteByPrefix(tx *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	iter.Close()

	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
